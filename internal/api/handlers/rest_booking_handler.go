package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Satyam8589/SaveServe-sub000/internal/services"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// RestBookingHandler handles claim requests and booking lifecycle calls.
type RestBookingHandler struct {
	allocationService services.IAllocationService
	bookingService    services.IBookingService
}

// NewRestBookingHandler creates a new RestBookingHandler.
func NewRestBookingHandler(allocationService services.IAllocationService, bookingService services.IBookingService) *RestBookingHandler {
	return &RestBookingHandler{
		allocationService: allocationService,
		bookingService:    bookingService,
	}
}

type claimRequest struct {
	ListingID utils.SixID `json:"listingId"`
	Quantity  int         `json:"requestedQuantity"`
	Message   string      `json:"message"`
}

// RequestClaim handles POST /v1/bookings
func (h *RestBookingHandler) RequestClaim(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.ListingID.IsZero() {
		badRequest(c, "listingId is required")
		return
	}
	booking, err := h.allocationService.RequestClaim(c.Request.Context(), services.ClaimRequest{
		ListingID: req.ListingID,
		Recipient: caller,
		Quantity:  req.Quantity,
		Message:   req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// ListMyBookings handles GET /v1/bookings
func (h *RestBookingHandler) ListMyBookings(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	bookings, err := h.bookingService.ListForRecipient(c.Request.Context(), caller.UserID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bookings, "limit": page.Limit, "offset": page.Offset})
}

// GetBooking handles GET /v1/bookings/:id
func (h *RestBookingHandler) GetBooking(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	booking, err := h.bookingService.Get(c.Request.Context(), caller, bookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ListForListing handles GET /v1/listings/:id/bookings
func (h *RestBookingHandler) ListForListing(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	bookings, err := h.bookingService.ListForListing(c.Request.Context(), listingID, caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bookings})
}

type approveRequest struct {
	Quantity int `json:"approvedQuantity" binding:"required"`
}

// Approve handles POST /v1/bookings/:id/approve
func (h *RestBookingHandler) Approve(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "approvedQuantity is required")
		return
	}
	booking, err := h.bookingService.Approve(c.Request.Context(), bookingID, caller.UserID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func bindReason(c *gin.Context) (string, bool) {
	var req reasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return "", false
		}
	}
	return req.Reason, true
}

// Reject handles POST /v1/bookings/:id/reject
func (h *RestBookingHandler) Reject(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	booking, err := h.bookingService.Reject(c.Request.Context(), bookingID, caller.UserID, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// Cancel handles POST /v1/bookings/:id/cancel
func (h *RestBookingHandler) Cancel(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	booking, err := h.bookingService.Cancel(c.Request.Context(), bookingID, caller, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
