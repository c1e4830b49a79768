package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Satyam8589/SaveServe-sub000/internal/api/middleware"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/services"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// statusForKind maps a rejection kind to its HTTP status.
var statusForKind = map[services.ErrorKind]int{
	services.KindValidation:           http.StatusBadRequest,
	services.KindNotVisible:           http.StatusNotFound,
	services.KindListingExpired:       http.StatusGone,
	services.KindInsufficientQuantity: http.StatusConflict,
	services.KindDuplicateActiveClaim: http.StatusConflict,
	services.KindInvalidTransition:    http.StatusConflict,
	services.KindCredentialExpired:    http.StatusGone,
	services.KindAlreadyCollected:     http.StatusConflict,
	services.KindNotAuthorized:        http.StatusForbidden,
	services.KindNotFound:             http.StatusNotFound,
}

// respondError writes a rejection as {"error":{"kind","reason"}}. Anything
// else is logged and reported as an internal error without detail.
func respondError(c *gin.Context, err error) {
	if r, ok := services.AsRejection(err); ok {
		status, known := statusForKind[r.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": gin.H{"kind": r.Kind, "reason": r.Reason}})
		return
	}
	_ = c.Error(err)
	log.Printf("[API] %s %s failed (request %s): %v", c.Request.Method, c.FullPath(), c.GetString(middleware.ContextKeyRequestID), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": "INTERNAL", "reason": "internal error"}})
}

func badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": services.KindValidation, "reason": reason}})
}

// identity fetches the caller set by AuthMiddleware, aborting if absent.
func identity(c *gin.Context) (models.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return id, ok
}

// pathID parses the SixID in the named path parameter.
func pathID(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name+" format")
		return id, false
	}
	return id, true
}

// pageFromQuery reads limit and offset, clamping to the store's bounds.
func pageFromQuery(c *gin.Context) db.Page {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(db.DefaultPageLimit)))
	if err != nil || limit <= 0 || limit > db.MaxPageLimit {
		limit = db.DefaultPageLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return db.Page{Limit: limit, Offset: offset}
}
