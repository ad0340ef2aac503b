package tools

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// blockedHostSuffixes name hosts that only resolve inside a private network
var blockedHostSuffixes = []string{".localhost", ".local", ".internal", ".lan", ".home.arpa"}

// sharedAddressSpace is the carrier-grade NAT range, which netip does not count as private
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("public_url", PublicURLValidation)
	return v
}

// PublicURLValidation accepts absolute http(s) URLs without credentials whose host
// is a public name or address.
func PublicURLValidation(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.User != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return PublicHost(u.Hostname())
}

// PublicHost reports whether host may be fetched by an engine. Names are
// judged without resolving them; see PublicAddr for resolved addresses.
func PublicHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || host == "localhost" {
		return false
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return false
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return PublicAddr(addr)
	}

	// browsers read 2130706433 or 0x7f.1 as IPv4 addresses
	labels := strings.Split(host, ".")
	last := labels[len(labels)-1]
	return !isNumericLabel(last)
}

// PublicAddr reports whether addr is routable on the public internet
func PublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	if addr.Is4() && addr.As4()[0] == 0 {
		return false
	}
	return true
}

func isNumericLabel(label string) bool {
	if label == "" {
		return false
	}
	if strings.HasPrefix(label, "0x") {
		return true
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
