// Package sim is an in-memory browser backed by static HTML pages. It
// evaluates selectors with goquery and models just enough behaviour (links,
// login forms, keyboard navigation, interception) to exercise the engine
// without a real browser.
package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
)

// Site is a set of static pages served to simulated browsers.
//
// Pages are served to authenticated browsers and GuestPages to everyone
// else. When RequireLogin is set, a guest requesting a URL that has no guest
// page is redirected to LoginURL.
type Site struct {
	BaseURL      string
	HomeURL      string
	LoginURL     string
	AfterLogin   string
	Username     string
	Password     string
	RequireLogin bool
	Pages        map[string]string
	GuestPages   map[string]string
	Redirects    map[string]string
	// FailWaits makes Navigate report a timeout for the listed conditions
	// after the navigation has committed.
	FailWaits map[browser.WaitCondition]bool

	mu           sync.Mutex
	launches     int
	closes       int
	loginSubmits int
	screenshots  int
	history      []string
}

// NewSite returns an empty site rooted at baseURL.
func NewSite(baseURL string) *Site {
	base := strings.TrimRight(baseURL, "/")
	return &Site{
		BaseURL:    base,
		HomeURL:    base + "/",
		LoginURL:   base + "/accounts/login/",
		Pages:      map[string]string{},
		GuestPages: map[string]string{},
		Redirects:  map[string]string{},
		FailWaits:  map[browser.WaitCondition]bool{},
	}
}

// Launches returns how many browsers were launched against the site.
func (s *Site) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

// Closes returns how many browsers were closed.
func (s *Site) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// LoginSubmits returns how many times a login form was submitted.
func (s *Site) LoginSubmits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginSubmits
}

// Screenshots returns how many screenshots were taken.
func (s *Site) Screenshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenshots
}

// History returns every URL any browser landed on, in order.
func (s *Site) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Site) record(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// resolve follows redirects and login gating and returns the landing URL and
// its markup.
func (s *Site) resolve(url string, authenticated bool) (string, string) {
	for i := 0; i < 10; i++ {
		next, ok := s.Redirects[url]
		if !ok {
			break
		}
		url = next
	}
	if !authenticated {
		if html, ok := s.GuestPages[url]; ok {
			return url, html
		}
		if s.RequireLogin {
			return s.LoginURL, s.GuestPages[s.LoginURL]
		}
	}
	if html, ok := s.Pages[url]; ok {
		return url, html
	}
	if html, ok := s.GuestPages[url]; ok {
		return url, html
	}
	return url, "<html><body></body></html>"
}

type manifest struct {
	BaseURL      string            `yaml:"base_url"`
	Home         string            `yaml:"home"`
	Login        string            `yaml:"login"`
	AfterLogin   string            `yaml:"after_login"`
	Username     string            `yaml:"username"`
	Password     string            `yaml:"password"`
	RequireLogin bool              `yaml:"require_login"`
	Pages        map[string]string `yaml:"pages"`
	GuestPages   map[string]string `yaml:"guest_pages"`
	Redirects    map[string]string `yaml:"redirects"`
}

// LoadSite reads site.yaml from dir. Page entries map a path relative to
// base_url to an HTML file relative to dir.
func LoadSite(dir string) (*Site, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "site.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading site manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing site manifest: %w", err)
	}
	if m.BaseURL == "" {
		return nil, fmt.Errorf("site manifest: base_url is required")
	}

	s := NewSite(m.BaseURL)
	s.Username = m.Username
	s.Password = m.Password
	s.RequireLogin = m.RequireLogin
	if m.Home != "" {
		s.HomeURL = s.abs(m.Home)
	}
	if m.Login != "" {
		s.LoginURL = s.abs(m.Login)
	}
	if m.AfterLogin != "" {
		s.AfterLogin = s.abs(m.AfterLogin)
	}

	load := func(dst map[string]string, src map[string]string) error {
		for path, file := range src {
			body, err := os.ReadFile(filepath.Join(dir, file))
			if err != nil {
				return fmt.Errorf("reading page %s: %w", path, err)
			}
			dst[s.abs(path)] = string(body)
		}
		return nil
	}
	if err := load(s.Pages, m.Pages); err != nil {
		return nil, err
	}
	if err := load(s.GuestPages, m.GuestPages); err != nil {
		return nil, err
	}
	for from, to := range m.Redirects {
		s.Redirects[s.abs(from)] = s.abs(to)
	}
	return s, nil
}

func (s *Site) abs(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.BaseURL + "/" + strings.TrimLeft(path, "/")
}
