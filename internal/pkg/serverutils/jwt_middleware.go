// FILE: internal/pkg/serverutils/jwt_middleware.go
package serverutils

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalSessionID is the fiber local holding the correlation id bound to the token.
const LocalSessionID = "session_id"

// IssueSessionToken signs a widget session token bound to one correlation id.
func IssueSessionToken(secret, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// SessionTokenMiddleware requires a widget session token when secret is set.
// Without a secret every request passes.
func SessionTokenMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if secret == "" {
			return ctx.Next()
		}

		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(TypedErrorResponse(fiber.StatusUnauthorized, ErrorTypeUnauthorized, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(TypedErrorResponse(fiber.StatusUnauthorized, ErrorTypeUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(TypedErrorResponse(fiber.StatusUnauthorized, ErrorTypeUnauthorized, "Invalid claims"))
		}
		sid, _ := claims["sid"].(string)
		if sid == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(TypedErrorResponse(fiber.StatusUnauthorized, ErrorTypeUnauthorized, "Invalid claims"))
		}

		ctx.Locals(LocalSessionID, sid)
		return ctx.Next()
	}
}

// SessionIDFromToken returns the correlation id bound by SessionTokenMiddleware.
func SessionIDFromToken(ctx *fiber.Ctx) (string, bool) {
	sid, ok := ctx.Locals(LocalSessionID).(string)
	return sid, ok && sid != ""
}
