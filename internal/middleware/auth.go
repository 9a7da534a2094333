package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/util"
	"go.uber.org/zap"
)

// UserIDHeader names the viewer directly. It is honoured only when no JWT
// secret is configured, i.e. in local development.
const UserIDHeader = "X-User-ID"

// Claims is the token payload the service accepts
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ViewerAuth resolves the viewer from a Bearer token signed with secret.
// Anonymous requests pass through without a viewer; a present but invalid
// token is rejected.
func ViewerAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if secret == "" {
				if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
					c.Set(util.ContextKeyViewerID, id)
				}
			}
			c.Next()
			return
		}

		if secret == "" {
			util.RespondUnauthorized(c, "token authentication is not configured")
			return
		}

		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			util.RespondUnauthorized(c, "authorization header must be a Bearer token")
			return
		}

		userID, err := parseToken(tokenString, key)
		if err != nil {
			logger.Log.Debug("Rejected token", zap.Error(err))
			util.RespondUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(util.ContextKeyViewerID, userID)
		c.Next()
	}
}

// RequireViewer rejects requests that ViewerAuth left anonymous
func RequireViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := util.GetViewerID(c); !ok {
			util.RespondUnauthorized(c)
			return
		}
		c.Next()
	}
}

func parseToken(tokenString string, key []byte) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("token has no user_id claim")
	}
	return claims.UserID, nil
}

// SignToken issues an HS256 token for userID. Used by the seeder and tests.
func SignToken(secret, userID string, claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           userID,
		RegisteredClaims: claims,
	}).SignedString([]byte(secret))
}
