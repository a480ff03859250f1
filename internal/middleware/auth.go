package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/serviceyard/marketplace-api/internal/model"
)

const actorContextKey = "actor"

// Claims is the token payload: the subject is the actor ID and kind
// distinguishes clients, providers and admins.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and stores the resulting Actor on the
// gin context. Every engine operation receives this actor explicitly.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		kind := model.ActorKind(claims.Kind)
		if kind != model.ActorClient && kind != model.ActorProvider && kind != model.ActorAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid actor kind"})
			return
		}
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
			return
		}

		c.Set(actorContextKey, model.Actor{Kind: kind, ID: id})
		c.Next()
	}
}

// ActorFromContext returns the authenticated actor set by Auth.
func ActorFromContext(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
