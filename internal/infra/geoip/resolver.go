package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no database is loaded.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// CountryResolver resolves ISO country codes from IP addresses.
type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Resolver looks up countries in a MaxMind database and remembers recent
// answers so repeated requests from one client skip the reader.
type Resolver struct {
	reader *geoip2.Reader

	mu    sync.Mutex
	cache map[string]string
	limit int
}

const defaultCacheSize = 4096

// NewResolver opens the database at path. An empty path yields a nil
// resolver, which callers treat as "no geo lookup".
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader, cache: make(map[string]string), limit: defaultCacheSize}, nil
}

// CountryCode returns the upper-case ISO code for ip, or "" for addresses
// that cannot be located (private ranges, loopback, unknown networks).
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed, err := parseRoutable(ip)
	if err != nil || parsed == nil {
		return "", err
	}
	key := parsed.String()

	r.mu.Lock()
	if code, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return code, nil
	}
	r.mu.Unlock()

	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	code := ""
	if record != nil {
		code = strings.ToUpper(record.Country.IsoCode)
	}

	r.mu.Lock()
	if len(r.cache) >= r.limit {
		clear(r.cache)
	}
	r.cache[key] = code
	r.mu.Unlock()
	return code, nil
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// LookupFunc adapts a resolver to a plain function. A nil resolver gives nil
// so the i18n middleware falls back to headers only.
func LookupFunc(res CountryResolver) func(ip string) (string, error) {
	if res == nil {
		return nil
	}
	if r, ok := res.(*Resolver); ok && r == nil {
		return nil
	}
	return res.CountryCode
}

func parseRoutable(ip string) (net.IP, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return nil, nil
	}
	return parsed, nil
}
