// Package diagnostics captures a snapshot of the current view when a fatal
// login or navigation failure occurs.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
)

// Hook records a diagnostic snapshot.
type Hook interface {
	Capture(ctx context.Context, page browser.Page, reason string) (string, error)
}

// Nop discards captures.
type Nop struct{}

// Capture implements Hook.
func (Nop) Capture(context.Context, browser.Page, string) (string, error) { return "", nil }

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileCapture writes full-page screenshots to Dir as <reason>_<timestamp>.png.
type FileCapture struct {
	Dir string
	Now func() time.Time
}

// Capture implements Hook.
func (f FileCapture) Capture(ctx context.Context, page browser.Page, reason string) (string, error) {
	if page == nil {
		return "", fmt.Errorf("no page to capture")
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("taking screenshot: %w", err)
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating diagnostics dir: %w", err)
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	name := fmt.Sprintf("%s_%s.png", unsafeChars.ReplaceAllString(reason, "_"), now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

// Guard captures a snapshot when err is non-nil and returns err unchanged.
// Capture failures are logged, never returned.
func Guard(ctx context.Context, hook Hook, page browser.Page, reason string, err error) error {
	if err == nil || hook == nil {
		return err
	}
	// The job context may already be cancelled; the snapshot still matters.
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	path, capErr := hook.Capture(capCtx, page, reason)
	if capErr != nil {
		slog.Warn("diagnostic capture failed", "reason", reason, "error", capErr)
		return err
	}
	if path != "" {
		slog.Info("diagnostic snapshot saved", "reason", reason, "path", path, "cause", err)
	}
	return err
}
