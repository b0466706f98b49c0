package clientip

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UnknownKey pools every caller without a resolvable IP into one identity.
const UnknownKey = "unknown"

// proxyHeaders are single-value headers set by the edge proxy, checked in order
// before the generic X-Forwarded-For chain.
var proxyHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
}

// FromCtx returns the normalized client IP of the request or "" if none of the
// forwarding headers carries a valid address.
// Priority order:
// 1. CF-Connecting-IP (Cloudflare)
// 2. True-Client-IP (Akamai / Cloudflare Enterprise)
// 3. X-Real-IP (Nginx reverse proxy)
// 4. X-Forwarded-For (first valid entry)
//
// The transport peer address is ignored: behind a proxy it identifies the proxy.
func FromCtx(c *fiber.Ctx) string {
	for _, h := range proxyHeaders {
		if ip := Parse(c.Get(h)); ip != "" {
			return ip
		}
	}

	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := Parse(part); ip != "" {
				return ip
			}
		}
	}
	return ""
}

// Parse validates and normalizes an IP address string.
// Returns empty string if the IP is invalid.
func Parse(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// KeyFor returns the rate-limit identity for an extracted client IP.
func KeyFor(ip string) string {
	if ip == "" {
		return UnknownKey
	}
	return ip
}
