package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "debugsession.toml", "watches = [\"a\"]\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Config
	err := Watch(ctx, path, slog.New(slog.DiscardHandler), func(c Config) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	require.NoError(t, err)

	// An invalid file is skipped.
	require.NoError(t, os.WriteFile(path, []byte("[engine\n"), 0o600))
	time.Sleep(3 * ReloadDelay)
	require.NoError(t, os.WriteFile(path, []byte("watches = [\"a\", \"b\"]\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, got[len(got)-1].Watches)
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/debugsession.toml", slog.New(slog.DiscardHandler), func(Config) {})
	assert.Error(t, err)
}
