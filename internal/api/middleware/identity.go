package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityMiddleware resolves who is calling. Identity travels either as a
// signed JWT in the `token` query parameter, or as plain userId/userName/
// userColor query parameters when no secret is configured (browsers cannot
// set headers on a WebSocket handshake, hence query params).
type IdentityMiddleware struct {
	jwtSecret string
}

func NewIdentityMiddleware(jwtSecret string) *IdentityMiddleware {
	return &IdentityMiddleware{jwtSecret: jwtSecret}
}

type identityClaims struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserColor string `json:"user_color"`
	jwt.RegisteredClaims
}

// WebSocketIdentity validates the handshake identity and stores user_id,
// user_name and user_color on the gin context. Rejects with 401 when no
// usable identity is present.
func (im *IdentityMiddleware) WebSocketIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.Query("token"); token != "" && im.jwtSecret != "" {
			claims, err := im.parseToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				c.Abort()
				return
			}
			c.Set("user_id", claims.UserID)
			c.Set("user_name", claims.UserName)
			c.Set("user_color", claims.UserColor)
			c.Next()
			return
		}

		userID := c.Query("userId")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Set("user_name", c.Query("userName"))
		c.Set("user_color", c.Query("userColor"))
		c.Next()
	}
}

func (im *IdentityMiddleware) parseToken(tokenString string) (*identityClaims, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(im.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
