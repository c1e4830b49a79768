package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Satyam8589/SaveServe-sub000/internal/services"
)

// RestCollectionHandler handles pickup verification by providers.
type RestCollectionHandler struct {
	collectionService services.ICollectionService
}

// NewRestCollectionHandler creates a new RestCollectionHandler.
func NewRestCollectionHandler(collectionService services.ICollectionService) *RestCollectionHandler {
	return &RestCollectionHandler{collectionService: collectionService}
}

// Verify handles POST /v1/collection/verify. The scanning provider is the
// authenticated caller; a body value naming anyone else is refused.
func (h *RestCollectionHandler) Verify(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.ScanningProviderID != "" && req.ScanningProviderID != caller.UserID {
		respondError(c, &services.Rejection{Kind: services.KindNotAuthorized, Reason: "scanning provider does not match caller"})
		return
	}
	req.ScanningProviderID = caller.UserID

	booking, err := h.collectionService.Verify(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	// The scanning provider never sees the recipient's credential.
	c.JSON(http.StatusOK, booking.WithoutCredential())
}
