package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"faceattend/internal/apperr"
	"faceattend/internal/identity"
)

const callerKey = "caller"

// Required enforces bearer JWT tokens and stores the verified caller on the
// context. The access_token query parameter is accepted for EventSource
// clients that cannot set headers.
func Required(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			abort(c, apperr.Clone(apperr.ErrUnauthorized, "missing bearer token"))
			return
		}
		claims, err := issuer.Parse(tokenStr)
		if err != nil {
			abort(c, apperr.Clone(apperr.ErrUnauthorized, "invalid token"))
			return
		}
		c.Set(callerKey, claims.Caller())
		c.Next()
	}
}

// CallerFrom returns the caller stored by Required.
func CallerFrom(c *gin.Context) (identity.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return identity.Caller{}, false
	}
	caller, ok := v.(identity.Caller)
	return caller, ok
}

// SetCaller stores caller on the context. Used by tests and internal routes.
func SetCaller(c *gin.Context, caller identity.Caller) {
	c.Set(callerKey, caller)
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return strings.TrimSpace(c.Query("access_token"))
}

func abort(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.Status, gin.H{
		"success": false,
		"message": err.Message,
		"error":   gin.H{"code": err.Code, "message": err.Message},
	})
}
