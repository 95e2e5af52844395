package locator

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultCatalog []byte

// Catalog holds every selector chain the engine uses.
type Catalog struct {
	LoggedIn       Chain `yaml:"logged_in"`
	LoginForm      Chain `yaml:"login_form"`
	Identity       Chain `yaml:"identity"`
	Secret         Chain `yaml:"secret"`
	Submit         Chain `yaml:"submit"`
	Interstitials  Chain `yaml:"interstitials"`
	ListingMarkers Chain `yaml:"listing_markers"`
	HashtagMarkers Chain `yaml:"hashtag_markers"`
	ReelsTab       Chain `yaml:"reels_tab"`
	EntryPoints    Chain `yaml:"entry_points"`
	Next           Chain `yaml:"next"`
	Caption        Chain `yaml:"caption"`
	Time           Chain `yaml:"time"`
	Likes          Chain `yaml:"likes"`
	Comments       Chain `yaml:"comments"`
	Views          Chain `yaml:"views"`
}

// DefaultCatalog returns the built-in selectors.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns the
// built-in selectors.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading selector catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing selector catalog: %w", err)
	}
	for name, ch := range c.chains() {
		ch.Name = name
		if len(ch.Selectors) == 0 {
			return nil, fmt.Errorf("selector catalog: %s has no selectors", name)
		}
		for i, s := range ch.Selectors {
			if s.CSS == "" {
				return nil, fmt.Errorf("selector catalog: %s[%d] has an empty css selector", name, i)
			}
		}
	}
	return &c, nil
}

func (c *Catalog) chains() map[string]*Chain {
	return map[string]*Chain{
		"logged_in":       &c.LoggedIn,
		"login_form":      &c.LoginForm,
		"identity":        &c.Identity,
		"secret":          &c.Secret,
		"submit":          &c.Submit,
		"interstitials":   &c.Interstitials,
		"listing_markers": &c.ListingMarkers,
		"hashtag_markers": &c.HashtagMarkers,
		"reels_tab":       &c.ReelsTab,
		"entry_points":    &c.EntryPoints,
		"next":            &c.Next,
		"caption":         &c.Caption,
		"time":            &c.Time,
		"likes":           &c.Likes,
		"comments":        &c.Comments,
		"views":           &c.Views,
	}
}
