package links

import (
	"testing"

	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

func TestListing(t *testing.T) {
	b := New("https://www.instagram.com/")

	tests := []struct {
		name     string
		target   models.Target
		expected string
	}{
		{
			name:     "user reels tab",
			target:   models.UserTarget("alice"),
			expected: "https://www.instagram.com/alice/reels/",
		},
		{
			name:     "user with leading at sign",
			target:   models.UserTarget("@bob"),
			expected: "https://www.instagram.com/bob/reels/",
		},
		{
			name:     "hashtag explore page",
			target:   models.HashtagTarget("#golang"),
			expected: "https://www.instagram.com/explore/tags/golang/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Listing(tt.target)
			if got != tt.expected {
				t.Errorf("Listing()\n  got:  %s\n  want: %s", got, tt.expected)
			}
		})
	}
}

func TestAbsolute(t *testing.T) {
	b := New("https://www.instagram.com")

	tests := []struct {
		href     string
		expected string
	}{
		{"/reel/abc/", "https://www.instagram.com/reel/abc/"},
		{"reel/abc/", "https://www.instagram.com/reel/abc/"},
		{"https://cdn.example.com/reel/x/", "https://cdn.example.com/reel/x/"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := b.Absolute(tt.href); got != tt.expected {
			t.Errorf("Absolute(%q) = %q, want %q", tt.href, got, tt.expected)
		}
	}
}

func TestIsAuthenticatedURL(t *testing.T) {
	b := New("https://www.instagram.com")

	if b.Domain() != "instagram.com" {
		t.Fatalf("Domain() = %q", b.Domain())
	}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://www.instagram.com/", true},
		{"https://www.instagram.com/accounts/onetap/", true},
		{"https://www.instagram.com/accounts/login/", false},
		{"https://www.instagram.com/accounts/login/?next=/", false},
		{"https://example.com/", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := b.IsAuthenticatedURL(tt.url); got != tt.expected {
			t.Errorf("IsAuthenticatedURL(%q) = %v, want %v", tt.url, got, tt.expected)
		}
	}
}

func TestIsDetail(t *testing.T) {
	if !IsDetail("https://www.instagram.com/reel/C1/") {
		t.Error("expected detail URL")
	}
	if IsDetail("https://www.instagram.com/alice/reels/") {
		t.Error("listing URL must not be a detail URL")
	}
}
