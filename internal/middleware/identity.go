package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// ContextUserIDKey is the gin context key the Identity middleware sets.
const ContextUserIDKey = "auth_user_id"

// ErrMissingToken indicates no token was supplied where one was required.
var ErrMissingToken = errors.New("missing identity token")

// Identity returns a gin middleware that verifies a bearer token issued by
// the upstream auth service and stores its user_id claim in the context.
// With an empty secret the middleware is a pass-through: identity is then
// taken from request parameters as-is.
func Identity(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		tokenStr, err := extractBearerToken(c)
		if err != nil {
			logrus.WithError(err).Warn("Identity middleware: missing or malformed Authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header with bearer token is required"})
			c.Abort()
			return
		}

		userID, err := ParseUserID(tokenStr, jwtSecret)
		if err != nil {
			logrus.WithError(err).Warn("Identity middleware: invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		logrus.WithField("user_id", userID).Debug("Identity middleware: user authenticated")
		c.Next()
	}
}

// ParseUserID validates the token signature and returns its user_id claim.
// Shared with the WebSocket gateway, which carries the token as a query
// parameter instead of a header.
func ParseUserID(tokenStr, secret string) (string, error) {
	if tokenStr == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token or claims type")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("token missing user_id claim")
	}
	return userID, nil
}

func extractBearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}
