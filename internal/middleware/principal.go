package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mbongo/internal/auth"
)

const principalLocal = "principal"

// Principal returns a middleware that validates bearer tokens and binds the
// caller principal for downstream handlers. The principal is matched against
// account owners by the ledger, so every write route must run behind this.
func Principal(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		principal, err := auth.Principal(token, []byte(secret), time.Now())
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(principalLocal, principal)
		return c.Next()
	}
}

// CallerPrincipal returns the principal bound by Principal, "" when the
// route runs unauthenticated.
func CallerPrincipal(c *fiber.Ctx) string {
	principal, _ := c.Locals(principalLocal).(string)
	return principal
}
