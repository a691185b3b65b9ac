package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass token handling entirely.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper reports whether the request should skip authentication:
// health checks and logo images, which are embedded in pages as plain
// <img> tags.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether path is served without authentication.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/api/v1/logos/") && strings.HasSuffix(path, "/image")
}
