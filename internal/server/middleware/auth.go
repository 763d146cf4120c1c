package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
)

const principalKey = "principal"

// Claims are the token claims issued by the auth service.
type Claims struct {
	ID   string      `json:"id"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate verifies the bearer token and requires one of roles. An empty
// roles list accepts any authenticated caller.
func Authenticate(secret string, roles ...models.Role) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			Abort(c, apperrors.ErrUnauthorized)
			return
		}

		claims := &Claims{}
		parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !parsed.Valid {
			Abort(c, apperrors.ErrUnauthorized)
			return
		}

		p := models.Principal{UserID: claims.ID, Role: claims.Role}
		if len(roles) > 0 && !p.HasRole(roles...) {
			Abort(c, apperrors.ErrForbidden)
			return
		}

		SetPrincipal(c, p)
		c.Next()
	}
}

// SetPrincipal stores the caller on the request context.
func SetPrincipal(c *gin.Context, p models.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

// Abort writes err as the JSON error envelope and stops the chain.
func Abort(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
