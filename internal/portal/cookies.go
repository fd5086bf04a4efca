package portal

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

// BrowserCookie is one entry of a browser cookie export.
type BrowserCookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	ExpirationDate float64 `json:"expirationDate,omitempty"`
	HostOnly       bool    `json:"hostOnly"`
	SameSite       string  `json:"sameSite,omitempty"`
	StoreID        string  `json:"storeId,omitempty"`
}

// Cookie is a normalized cookie ready to be applied to a session.
// Browser-only attributes (hostOnly, sameSite, storeId) are dropped.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  time.Time
}

// LoadCookies reads and normalizes a browser cookie export.
func LoadCookies(path string) ([]Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return ParseCookies(b)
}

func ParseCookies(b []byte) ([]Cookie, error) {
	var raw []BrowserCookie
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return NormalizeCookies(raw), nil
}

// NormalizeCookies skips cookies without a domain and strips the leading dot
// from host-only cookie domains.
func NormalizeCookies(raw []BrowserCookie) []Cookie {
	out := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		domain := strings.TrimSpace(rc.Domain)
		if domain == "" {
			continue
		}
		if rc.HostOnly && strings.HasPrefix(domain, ".") {
			domain = strings.TrimPrefix(domain, ".")
		}
		c := Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   domain,
			Path:     rc.Path,
			Secure:   rc.Secure,
			HTTPOnly: rc.HTTPOnly,
		}
		if c.Path == "" {
			c.Path = "/"
		}
		if rc.ExpirationDate > 0 {
			sec, frac := math.Modf(rc.ExpirationDate)
			c.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		out = append(out, c)
	}
	return out
}

func (c Cookie) HTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		Expires:  c.Expires,
	}
}

// byOrigin groups cookies by the https origin of their domain, which is
// what a cookie jar needs to accept them.
func byOrigin(cs []Cookie) map[string][]*http.Cookie {
	out := make(map[string][]*http.Cookie)
	for _, c := range cs {
		host := strings.TrimPrefix(c.Domain, ".")
		origin := "https://" + host + "/"
		out[origin] = append(out[origin], c.HTTP())
	}
	return out
}
