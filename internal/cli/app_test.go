package cli

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arbor.yaml"), []byte(content), 0644))
}

func TestNewApp_DefaultFileStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	app, err := NewApp(ctx, Options{Dir: dir, LogLevel: "error"})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Manager.Create(ctx, "doc", "", domain.Document{Text: "hi"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ".arbor", "documents", "doc.json"))
	assert.NoError(t, err)
}

func TestNewApp_SQLite(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "store:\n  driver: sqlite\n")
	ctx := context.Background()

	app, err := NewApp(ctx, Options{Dir: dir})
	require.NoError(t, err)

	_, err = app.Manager.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	require.NoError(t, app.Close())

	_, err = os.Stat(filepath.Join(dir, ".arbor", "arbor.sqlite"))
	assert.NoError(t, err)
}

func TestNewApp_RedisWithLock(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	writeConfig(t, dir, "store:\n  driver: redis\n  options:\n    addr: "+mr.Addr()+"\nlock:\n  distributed: true\n")
	ctx := context.Background()

	app, err := NewApp(ctx, Options{Dir: dir})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Manager.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)

	ids, err := app.Manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, ids)
}

func TestNewApp_Encryption(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	t.Setenv("ARBOR_TEST_KEY", base64.StdEncoding.EncodeToString(key))

	dir := t.TempDir()
	writeConfig(t, dir, "store:\n  driver: file\nsecurity:\n  encryption_key_env: ARBOR_TEST_KEY\n")
	ctx := context.Background()

	app, err := NewApp(ctx, Options{Dir: dir})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Manager.Create(ctx, "doc", "Top Secret", domain.Document{})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, ".arbor", "documents", "doc.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Top Secret")

	// A fresh app with the same key reads it back.
	again, err := NewApp(ctx, Options{Dir: dir})
	require.NoError(t, err)
	defer again.Close()
	info, err := again.Manager.Open(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "Top Secret", info.Title)
}

func TestNewApp_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("bad log level", func(t *testing.T) {
		_, err := NewApp(ctx, Options{Dir: t.TempDir(), LogLevel: "chatty"})
		assert.Error(t, err)
	})

	t.Run("missing key variable", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "security:\n  encryption_key_env: ARBOR_TEST_UNSET_KEY\n")
		_, err := NewApp(ctx, Options{Dir: dir})
		assert.ErrorContains(t, err, "ARBOR_TEST_UNSET_KEY")
	})

	t.Run("short key", func(t *testing.T) {
		t.Setenv("ARBOR_TEST_SHORT_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
		dir := t.TempDir()
		writeConfig(t, dir, "security:\n  encryption_key_env: ARBOR_TEST_SHORT_KEY\n")
		_, err := NewApp(ctx, Options{Dir: dir})
		assert.ErrorContains(t, err, "32 bytes")
	})

	t.Run("unknown store option", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "store:\n  driver: file\n  options:\n    folder: x\n")
		_, err := NewApp(ctx, Options{Dir: dir})
		assert.Error(t, err)
	})
}
