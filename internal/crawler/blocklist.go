package crawler

import "strings"

// hostBlocklist holds the hosts a crawler refuses to fetch. Plain entries
// match one host; "*.zone" or ".zone" entries match the zone and everything
// below it.
type hostBlocklist struct {
	hosts map[string]struct{}
	zones map[string]struct{}
}

// newHostBlocklist returns nil when no usable pattern is given.
func newHostBlocklist(patterns []string) *hostBlocklist {
	b := &hostBlocklist{
		hosts: make(map[string]struct{}),
		zones: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		entry := normalizeHost(raw)
		zone := strings.TrimPrefix(strings.TrimPrefix(entry, "*"), ".")
		switch {
		case zone == "":
		case zone != entry:
			b.zones[zone] = struct{}{}
		default:
			b.hosts[entry] = struct{}{}
		}
	}
	if len(b.hosts)+len(b.zones) == 0 {
		return nil
	}
	return b
}

// Blocked reports whether host is covered by the list. A nil list blocks nothing.
func (b *hostBlocklist) Blocked(host string) bool {
	host = normalizeHost(host)
	if b == nil || host == "" {
		return false
	}
	if _, ok := b.hosts[host]; ok {
		return true
	}
	for name := host; ; {
		if _, ok := b.zones[name]; ok {
			return true
		}
		dot := strings.IndexByte(name, '.')
		if dot < 0 {
			return false
		}
		name = name[dot+1:]
	}
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}
