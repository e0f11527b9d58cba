package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	operatorContextKey  = "operatorSubject"
)

// ManagementAuthMiddleware verifies HMAC-signed bearer tokens on the
// management routes. Tokens are issued by the platform's identity service,
// not by this API.
func ManagementAuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ManagementAuthMiddleware")
	key := []byte(secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authorizationHeader)
		if authHeader == "" {
			log.Debug("Authorization header is missing")
			_ = c.Error(fmt.Errorf("%w: authorization header required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, bearerPrefix) {
			log.Debug("Authorization header format is invalid")
			_ = c.Error(fmt.Errorf("%w: invalid authorization header format", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
		if tokenString == "" {
			log.Debug("Token is missing after Bearer prefix")
			_ = c.Error(fmt.Errorf("%w: token missing", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			log.Warn("Management token validation failed", zap.Error(err))
			_ = c.Error(fmt.Errorf("%w: management token rejected", ierr.ErrInvalidToken))
			c.Abort()
			return
		}

		log.Debug("Management token validated", zap.String("subject", claims.Subject))
		c.Set(operatorContextKey, claims.Subject)

		c.Next()
	}
}

// GetOperatorSubject returns the subject of the validated management token.
func GetOperatorSubject(c *gin.Context) string {
	value, exists := c.Get(operatorContextKey)
	if !exists {
		return ""
	}
	subject, _ := value.(string)
	return subject
}
