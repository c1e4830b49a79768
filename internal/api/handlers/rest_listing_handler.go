package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Satyam8589/SaveServe-sub000/internal/services"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService) *RestListingHandler {
	return &RestListingHandler{listingService: listingService}
}

// ListVisible handles GET /v1/listings
func (h *RestListingHandler) ListVisible(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	listings, err := h.listingService.ListVisible(c.Request.Context(), caller, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listings, "limit": page.Limit, "offset": page.Offset})
}

// GetListingByID handles GET /v1/listings/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	listing, err := h.listingService.GetListing(c.Request.Context(), caller, listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// CreateListing handles POST /v1/listings
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req services.NewListing
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	listing, err := h.listingService.CreateListing(c.Request.Context(), caller.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// ListProviderListings handles GET /v1/provider/listings
func (h *RestListingHandler) ListProviderListings(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	listings, err := h.listingService.ListProviderListings(c.Request.Context(), caller.UserID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listings, "limit": page.Limit, "offset": page.Offset})
}

// DeactivateListing handles POST /v1/listings/:id/deactivate
func (h *RestListingHandler) DeactivateListing(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	listing, err := h.listingService.DeactivateListing(c.Request.Context(), listingID, caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

type uploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// CreateImageUpload handles POST /v1/listings/:id/upload-url
func (h *RestListingHandler) CreateImageUpload(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "filename and contentType are required")
		return
	}
	ticket, err := h.listingService.CreateImageUpload(c.Request.Context(), listingID, caller.UserID, req.Filename, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

type setImageRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

// SetImage handles POST /v1/listings/:id/image
func (h *RestListingHandler) SetImage(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	listingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "objectKey is required")
		return
	}
	if err := h.listingService.SetImage(c.Request.Context(), listingID, caller.UserID, req.ObjectKey); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
