package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const identityKey = "identity"

// Identity is the resolved caller of a request. Requests without a valid
// token run as the guest sentinel.
type Identity struct {
	UserID string
	Role   string
}

func (id Identity) IsAdmin() bool { return id.Role == "admin" }

func (id Identity) IsGuest() bool { return id.UserID == models.GuestUserID }

// AuthMiddleware resolves the caller from a bearer token. A missing,
// malformed, or expired token downgrades to guest instead of rejecting;
// checkout must stay open to anonymous customers. Routes that need a real
// user or an admin add RequireAuth/RequireAdmin on top.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := Identity{UserID: models.GuestUserID}

		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") && jwtSecret != "" {
			tokenStr := strings.TrimPrefix(header, "Bearer ")
			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err == nil && token.Valid {
				if claims, ok := token.Claims.(jwt.MapClaims); ok {
					if uid, ok := claims["user_id"].(string); ok && uid != "" {
						ident.UserID = uid
					}
					if role, ok := claims["role"].(string); ok {
						ident.Role = role
					}
				}
			}
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// GetIdentity returns the identity resolved by AuthMiddleware.
func GetIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok := v.(Identity); ok {
			return ident
		}
	}
	return Identity{UserID: models.GuestUserID}
}

// RequireAuth rejects guests.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetIdentity(c).IsGuest() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authorization",
				"message": "bearer token required",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects everyone whose token role is not admin, before any
// storage is touched.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := GetIdentity(c)
		if ident.IsGuest() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authorization",
				"message": "bearer token required",
			})
			return
		}
		if !ident.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "authorization",
				"message": "admin role required",
			})
			return
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func newRateLimiter(limit rate.Limit, burst int) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		limiter := rate.NewLimiter(rl.limit, rl.burst)
		rl.visitors[key] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware throttles per caller: authenticated users by user id,
// anonymous callers by client IP.
func RateLimitMiddleware(limit rate.Limit, burst int) gin.HandlerFunc {
	rl := newRateLimiter(limit, burst)
	return func(c *gin.Context) {
		ident := GetIdentity(c)
		key := "ip:" + c.ClientIP()
		if !ident.IsGuest() {
			key = "user:" + ident.UserID
		}

		if !rl.get(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
