// Package security stamps browser-facing response headers. The server only
// serves JSON and a websocket upgrade, never markup, so the content security
// policy can refuse everything outright.
package security

import "github.com/gofiber/fiber/v2"

// Config toggles headers that depend on deployment. HSTS only makes sense
// behind TLS.
type Config struct {
	EnableHSTS bool
}

// New returns a middleware applying the restrictive header set for an API
// that renders nothing.
func New(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderXFrameOptions, "DENY")
		c.Set(fiber.HeaderReferrerPolicy, "no-referrer")
		c.Set(fiber.HeaderContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
		if cfg.EnableHSTS {
			c.Set(fiber.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		}
		return c.Next()
	}
}
