package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"assistant_server/pkg/apperr"
)

// JWTAuth validates HS256 session tokens and puts the user id in locals.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == "OPTIONS" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperr.Unauthorized("missing authorization header")
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return apperr.Unauthorized("malformed authorization header")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return apperr.InvalidToken("token validation failed")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.InvalidToken("invalid claims")
		}
		if exp, ok := claims["exp"].(float64); ok && time.Now().Unix() > int64(exp) {
			return apperr.InvalidToken("token expired")
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			return apperr.InvalidToken("missing subject")
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			return apperr.InvalidToken("invalid subject")
		}

		c.Locals("user_id", userID)
		c.Locals("claims", claims)
		return c.Next()
	}
}
