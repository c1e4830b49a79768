package middleware

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Satyam8589/SaveServe-sub000/internal/config"
)

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints. The hard
// bucket applies to every request; the soft bucket is a tighter budget for
// write-heavy endpoints such as claim requests.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	cfg     *config.Config
	stop    chan struct{}
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	go rm.cleanupClients(10*time.Minute, 30*time.Minute)
	return rm
}

// Close stops the background cleanup.
func (rm *RateLimiterMiddleware) Close() {
	close(rm.stop)
}

// getClientIdentifier prefers the authenticated user, falling back to the IP.
func getClientIdentifier(c *gin.Context) string {
	if id, ok := GetIdentity(c); ok {
		return "user:" + id.UserID
	}
	return "ip:" + c.ClientIP()
}

// getClientLimiter retrieves or creates the rate limiters for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(rm.cfg.RateLimitSoftRefillRate), rm.cfg.RateLimitSoftBucketSize),
			hardLimiter: rate.NewLimiter(rate.Limit(rm.cfg.RateLimitHardRefillRate), rm.cfg.RateLimitHardBucketSize),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes client entries not seen for idle.
func (rm *RateLimiterMiddleware) cleanupClients(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
		}
		if n := rm.evictIdle(idle); n > 0 {
			log.Printf("[RateLimit] Cleanup removed %d idle client entries.", n)
		}
	}
}

func (rm *RateLimiterMiddleware) evictIdle(idle time.Duration) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if time.Since(client.lastSeen) > idle {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

func tooManyRequests(c *gin.Context, limiter *rate.Limiter) {
	retry := 1
	if r := limiter.Limit(); r > 0 {
		retry = int(1/float64(r)) + 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
}

// Limit applies the hard per-client limit.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		limiter := rm.getClientLimiter(clientKey)
		if !limiter.hardLimiter.Allow() {
			log.Printf("[RateLimit] Hard limit exceeded for client %s on %s %s", clientKey, c.Request.Method, c.FullPath())
			tooManyRequests(c, limiter.hardLimiter)
			return
		}
		c.Next()
	}
}

// LimitStrict applies the soft per-client limit. Mount it after
// AuthMiddleware so it keys on the user rather than the IP.
func (rm *RateLimiterMiddleware) LimitStrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		limiter := rm.getClientLimiter(clientKey)
		if !limiter.softLimiter.Allow() {
			log.Printf("[RateLimit] Soft limit exceeded for client %s on %s %s", clientKey, c.Request.Method, c.FullPath())
			tooManyRequests(c, limiter.softLimiter)
			return
		}
		c.Next()
	}
}
