package links

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// DetailToken is the path segment present in every detail-view URL.
const DetailToken = "/reel/"

// LoginToken is the path segment present while the login surface is showing.
const LoginToken = "login"

// Builder constructs application URLs from a base URL.
// All methods are pure functions with no side effects.
type Builder struct {
	BaseURL string
}

// New returns a Builder rooted at baseURL. A trailing slash is trimmed.
func New(baseURL string) Builder {
	return Builder{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Home returns the application home surface.
func (b Builder) Home() string {
	return b.BaseURL + "/"
}

// Login returns the login surface.
func (b Builder) Login() string {
	return b.BaseURL + "/accounts/login/"
}

// Listing returns the listing page for a target: the reels tab of a user
// profile, or the explore page of a hashtag.
func (b Builder) Listing(t models.Target) string {
	if t.Kind == models.TargetHashtag {
		return fmt.Sprintf("%s/explore/tags/%s/", b.BaseURL, url.PathEscape(t.Value))
	}
	return fmt.Sprintf("%s/%s/reels/", b.BaseURL, url.PathEscape(t.Value))
}

// Absolute resolves href against the base URL. Absolute hrefs are returned
// unchanged.
func (b Builder) Absolute(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(b.BaseURL + "/")
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Domain returns the registrable host of the base URL without a "www." prefix.
func (b Builder) Domain() string {
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// IsDetail reports whether u points at a detail view.
func IsDetail(u string) bool {
	return strings.Contains(u, DetailToken)
}

// IsAuthenticatedURL reports whether u is on the application domain and no
// longer references the login surface.
func (b Builder) IsAuthenticatedURL(u string) bool {
	domain := b.Domain()
	return domain != "" && strings.Contains(u, domain) && !strings.Contains(u, LoginToken)
}
