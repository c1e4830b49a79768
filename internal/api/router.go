package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Satyam8589/SaveServe-sub000/internal/api/handlers"
	"github.com/Satyam8589/SaveServe-sub000/internal/api/middleware"
	"github.com/Satyam8589/SaveServe-sub000/internal/auth"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/monitoring"
	"github.com/Satyam8589/SaveServe-sub000/internal/services"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// Services bundles what the public API handlers depend on.
type Services struct {
	Listings   services.IListingService
	Allocation services.IAllocationService
	Bookings   services.IBookingService
	Collection services.ICollectionService
	// Inbox is optional; without it /v1/notifications is not mounted.
	Inbox handlers.Inbox
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.RequestIDMiddleware())
	r.Use(monitoring.GinMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigins))
	r.Use(rateLimiter.Limit())

	restListingHandler := handlers.NewRestListingHandler(svc.Listings)
	restBookingHandler := handlers.NewRestBookingHandler(svc.Allocation, svc.Bookings)
	restCollectionHandler := handlers.NewRestCollectionHandler(svc.Collection)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			// Visibility is decided per caller, so browsing needs an identity too.
			authRequired.GET("/listings", restListingHandler.ListVisible)
			authRequired.GET("/listings/:id", restListingHandler.GetListingByID)
			authRequired.GET("/bookings/:id", restBookingHandler.GetBooking)

			if svc.Inbox != nil {
				restNotificationHandler := handlers.NewRestNotificationHandler(svc.Inbox)
				authRequired.GET("/notifications", restNotificationHandler.ListRecent)
			}

			recipients := authRequired.Group("/")
			recipients.Use(middleware.RequireRole(models.RoleRecipient))
			{
				recipients.POST("/bookings", rateLimiter.LimitStrict(), restBookingHandler.RequestClaim)
				recipients.GET("/bookings", restBookingHandler.ListMyBookings)
			}

			// Cancel is open to both parties; the service checks ownership.
			authRequired.POST("/bookings/:id/cancel", restBookingHandler.Cancel)

			providers := authRequired.Group("/")
			providers.Use(middleware.RequireRole(models.RoleProvider))
			{
				providers.POST("/listings", restListingHandler.CreateListing)
				providers.GET("/provider/listings", restListingHandler.ListProviderListings)
				providers.POST("/listings/:id/deactivate", restListingHandler.DeactivateListing)
				providers.POST("/listings/:id/upload-url", restListingHandler.CreateImageUpload)
				providers.POST("/listings/:id/image", restListingHandler.SetImage)
				providers.GET("/listings/:id/bookings", restBookingHandler.ListForListing)
				providers.POST("/bookings/:id/approve", restBookingHandler.Approve)
				providers.POST("/bookings/:id/reject", restBookingHandler.Reject)
				providers.POST("/collection/verify", restCollectionHandler.Verify)
			}
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine. It is
// bound to an internal port and carries operator commands.
func SetupServiceRouter(cfg *config.Config, sweeper services.ISweeperService, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": cfg.RunMode, "store": cfg.StoreDriver})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			if !cfg.MockServices {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "shutdown is only available with MOCK_SERVICES=true"})
				return
			}
			log.Println("[Service API] Received shutdown command")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				log.Println("[Service API] Shutdown signal sent successfully.")
			default:
				log.Println("[Service API] Shutdown channel already signaled or blocked.")
			}

		case "sweep":
			report, err := sweeper.Sweep(c.Request.Context())
			if err != nil {
				log.Printf("[Service API] Sweep failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "result": report})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": report})

		case "reconcile":
			var args []string // Expect ["listing_id"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [listingId]"})
				return
			}
			listingID, err := utils.ParseSixID(args[0])
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid listing ID format"})
				return
			}
			result, err := sweeper.Reconcile(c.Request.Context(), listingID)
			if err != nil {
				if rej, ok := services.AsRejection(err); ok && rej.Kind == services.KindNotFound {
					c.JSON(http.StatusNotFound, gin.H{"success": false, "error": rej.Reason})
					return
				}
				log.Printf("[Service API] Reconcile %s failed: %v", listingID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": result})

		case "issueToken":
			// Stands in for the identity provider in mock deployments.
			if !cfg.MockServices {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "issueToken is only available with MOCK_SERVICES=true"})
				return
			}
			var args []string // Expect ["user_id", "role", "subrole"?]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) < 2 || len(args) > 3 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [userId, role, subrole?]"})
				return
			}
			role, err := models.ParseRole(args[1])
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			var subrole models.Subrole
			if len(args) == 3 {
				if subrole, err = models.ParseSubrole(args[2]); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
					return
				}
			}
			token, err := auth.GenerateJWT(models.Identity{UserID: args[0], Role: role, Subrole: subrole}, cfg.JwtSecret, cfg.JwtTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": token})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
