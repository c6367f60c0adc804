/*
Package auth validates the bearer tokens the mobile clients attach to API
calls and injects the authenticated user into the request context. Token
issuance lives with the identity provider; this package only verifies.
*/
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// JwtCustomClaims carries the application claims embedded in access tokens.
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var sessionSecret []byte

// InitAuth loads the signing secret. Call once at startup, before any
// request reaches the protected routes.
func InitAuth() error {
	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		return fmt.Errorf("SESSION_SECRET environment variable is not set")
	}
	sessionSecret = []byte(secret)
	return nil
}

// JwtAuthMiddleware verifies the Authorization bearer token and sets
// "user_id" on the context for downstream handlers.
func JwtAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing bearer token"})
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenString, &JwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return sessionSecret, nil
		})
		if err != nil || !token.Valid {
			log.Info().Err(err).Msg("Token validation failed")
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
		}

		claims, ok := token.Claims.(*JwtCustomClaims)
		if !ok || claims.UserID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token claims"})
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		return next(c)
	}
}
