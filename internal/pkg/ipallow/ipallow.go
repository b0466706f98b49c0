package ipallow

import (
	"strings"

	"github.com/ManuelReschke/TenantFox/internal/pkg/clientip"
)

// Allowlist is an immutable set of literal IP addresses. An empty list
// disables the filter.
type Allowlist struct {
	ips map[string]struct{}
}

// New builds an allowlist from literal addresses. Entries that are not valid
// IPv4/IPv6 addresses are dropped.
func New(entries []string) *Allowlist {
	a := &Allowlist{ips: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		if ip := clientip.Parse(e); ip != "" {
			a.ips[ip] = struct{}{}
		}
	}
	return a
}

// ParseList builds an allowlist from a comma-separated list.
func ParseList(csv string) *Allowlist {
	if strings.TrimSpace(csv) == "" {
		return New(nil)
	}
	return New(strings.Split(csv, ","))
}

// Enabled reports whether at least one valid address is configured.
func (a *Allowlist) Enabled() bool {
	return a != nil && len(a.ips) > 0
}

func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.ips)
}

// Allows reports whether ip may pass. With the filter enabled an empty or
// invalid ip is denied.
func (a *Allowlist) Allows(ip string) bool {
	if !a.Enabled() {
		return true
	}
	normalized := clientip.Parse(ip)
	if normalized == "" {
		return false
	}
	_, ok := a.ips[normalized]
	return ok
}
