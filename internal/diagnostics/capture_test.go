package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/reelscraper/internal/browser"
	"github.com/kiranshivaraju/reelscraper/internal/browser/sim"
)

type recordingHook struct {
	reasons []string
}

func (h *recordingHook) Capture(_ context.Context, _ browser.Page, reason string) (string, error) {
	h.reasons = append(h.reasons, reason)
	return "", nil
}

func TestGuard_OnlyCapturesOnError(t *testing.T) {
	h := &recordingHook{}

	assert.NoError(t, Guard(context.Background(), h, nil, "login_failed", nil))
	assert.Empty(t, h.reasons)

	cause := errors.New("boom")
	err := Guard(context.Background(), h, nil, "login_failed", cause)
	assert.Same(t, cause, err)
	assert.Equal(t, []string{"login_failed"}, h.reasons)
}

func TestGuard_CapturesAfterCancellation(t *testing.T) {
	h := &recordingHook{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Guard(ctx, h, nil, "navigation_failed", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.reasons, 1)
}

func TestFileCapture_WritesPNG(t *testing.T) {
	site := sim.NewSite("https://sim.test")
	b, err := sim.Launcher{Site: site}.Launch(context.Background(), nil)
	require.NoError(t, err)
	defer b.Close()

	dir := filepath.Join(t.TempDir(), "debug")
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	hook := FileCapture{Dir: dir, Now: func() time.Time { return fixed }}

	path, err := hook.Capture(context.Background(), b.Page(), "navigation failed: #go/lang")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "navigation_failed_go_lang_20240301T120000.000000000.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
	assert.Equal(t, 1, site.Screenshots())
}

func TestFileCapture_NoPage(t *testing.T) {
	_, err := FileCapture{Dir: t.TempDir()}.Capture(context.Background(), nil, "x")
	assert.Error(t, err)
}
