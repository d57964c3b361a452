package security

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/seancfoley/ipaddress-go/ipaddr"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/sanitize"
)

// UnknownClient identifies requests whose origin cannot be determined.
const UnknownClient = "unknown"

// maxIdentifierLength bounds identifiers taken from unparseable header values.
const maxIdentifierLength = 128

// ClientIdentifier derives the rate-limit subject for r. With trustProxy set,
// the first X-Forwarded-For hop wins, then X-Real-IP; otherwise, or when both
// are absent, the host part of RemoteAddr is used. Addresses are returned in
// canonical form so that equivalent spellings share one window.
func ClientIdentifier(r *http.Request, trustProxy bool) string {
	id, _ := clientAddress(r, trustProxy)
	return id
}

func clientAddress(r *http.Request, trustProxy bool) (string, *ipaddr.IPAddress) {
	raw := ""
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw = strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if raw == "" {
			raw = strings.TrimSpace(r.Header.Get("X-Real-IP"))
		}
	}
	if raw == "" {
		raw = strings.TrimSpace(r.RemoteAddr)
	}
	if raw == "" {
		return UnknownClient, nil
	}
	return canonicalAddress(raw)
}

// CanonicalIdentifier normalizes an identifier supplied out of band, such as
// the subject of an admin reset, the way ClientIdentifier normalizes request
// addresses: "2001:0DB8::1" and "[2001:db8::1]:443" both become "2001:db8::1".
// Anything that is not an address is sanitized and bounded.
func CanonicalIdentifier(raw string) string {
	id, _ := canonicalAddress(strings.TrimSpace(raw))
	return id
}

func canonicalAddress(raw string) (string, *ipaddr.IPAddress) {
	if addr := parseAddress(raw); addr != nil {
		return addr.ToCanonicalString(), addr
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		if addr := parseAddress(host); addr != nil {
			return addr.ToCanonicalString(), addr
		}
	}

	return truncateIdentifier(sanitize.Input(raw)), nil
}

func truncateIdentifier(s string) string {
	runes := []rune(s)
	if len(runes) <= maxIdentifierLength {
		return s
	}
	return string(runes[:maxIdentifierLength])
}

func parseAddress(s string) *ipaddr.IPAddress {
	addr, err := ipaddr.NewIPAddressString(s).ToAddress()
	if err != nil || addr == nil || addr.IsPrefixed() {
		return nil
	}
	return addr
}

// ExemptList matches client addresses against trusted networks.
type ExemptList struct {
	trieV4 *ipaddr.IPv4AddressTrie
	trieV6 *ipaddr.IPv6AddressTrie
	count  int
}

// NewExemptList builds tries from single addresses and CIDR blocks. Invalid
// entries are logged and skipped.
func NewExemptList(networks []string) *ExemptList {
	list := &ExemptList{
		trieV4: &ipaddr.IPv4AddressTrie{},
		trieV6: &ipaddr.IPv6AddressTrie{},
	}

	for _, network := range networks {
		addr, err := ipaddr.NewIPAddressString(network).ToAddress()
		if err != nil || addr == nil {
			slog.Warn("Ignoring invalid exempt network", "network", network)
			continue
		}

		if addr.IsIPv4() {
			list.trieV4.Add(addr.ToIPv4())
			list.count++
		} else if addr.IsIPv6() {
			list.trieV6.Add(addr.ToIPv6())
			list.count++
		}
	}

	return list
}

// Len reports how many networks were accepted.
func (l *ExemptList) Len() int {
	if l == nil {
		return 0
	}
	return l.count
}

// Contains reports whether addr falls inside any exempt network.
func (l *ExemptList) Contains(addr *ipaddr.IPAddress) bool {
	if l == nil || addr == nil || l.count == 0 {
		return false
	}
	if addr.IsIPv4() {
		return l.trieV4.ElementContains(addr.ToIPv4())
	}
	if addr.IsIPv6() {
		return l.trieV6.ElementContains(addr.ToIPv6())
	}
	return false
}
