package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalops/apbots/constants"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestListDocuments(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.pdf", "a.PNG", "c.txt", ".hidden.pdf", "d.xlsx"} {
		touch(t, filepath.Join(dir, n))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Processed"), 0o755))
	touch(t, filepath.Join(dir, "Processed", "old.pdf"))

	got, err := ListDocuments(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PNG"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "d.xlsx"),
	}, got)

	got, err = ListDocuments(dir, constants.KindPDF, constants.KindImage)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = ListDocuments(filepath.Join(dir, "missing"))
	assert.Error(t, err)
	_, err = ListDocuments(" ")
	assert.Error(t, err)
}

func TestMover(t *testing.T) {
	dir := t.TempDir()
	m := NewMover("NotProcessed", false, nil)

	src := filepath.Join(dir, "inv.pdf")
	touch(t, src)
	dest, err := m.Move(src, constants.OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Processed", "inv.pdf"), dest)
	assert.NoFileExists(t, src)

	// collision gets a suffix
	touch(t, src)
	dest, err = m.Move(src, constants.OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Processed", "inv_1.pdf"), dest)

	dup := filepath.Join(dir, "dup.pdf")
	touch(t, dup)
	dest, err = m.Move(dup, constants.OutcomeDuplicate)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "NotProcessed", "dup.pdf"), dest)

	bad := filepath.Join(dir, "bad.pdf")
	touch(t, bad)
	dest, err = m.Move(bad, constants.OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, bad, dest)
	assert.FileExists(t, bad)
}

func TestMover_DisabledInTestMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inv.pdf")
	touch(t, src)

	m := NewMover("", true, nil)
	assert.Equal(t, constants.DuplicatesDir, m.DuplicatesDir)
	dest, err := m.Move(src, constants.OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, src, dest)
	assert.FileExists(t, src)
	assert.NoDirExists(t, filepath.Join(dir, "Processed"))
}

func TestAllowedExt(t *testing.T) {
	assert.True(t, AllowedExt(".PDF"))
	assert.True(t, AllowedExt("xlsx", constants.KindSpreadsheet))
	assert.False(t, AllowedExt("xlsx", constants.KindPDF))
	assert.False(t, AllowedExt(".docx"))
}

func TestStartWatcher_DebouncedArrival(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arrivals, _, err := StartWatcher(ctx, WatchConfig{Inboxes: []string{dir}, Debounce: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	touch(t, filepath.Join(dir, "a.pdf"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "b.png"))

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	select {
	case a := <-arrivals:
		assert.Equal(t, abs, a.Inbox)
		assert.Equal(t, []string{filepath.Join(abs, "a.pdf"), filepath.Join(abs, "b.png")}, a.Files)
	case <-time.After(5 * time.Second):
		t.Fatal("no arrival")
	}
}

func TestStartWatcher_InitialScan(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.pdf"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arrivals, _, err := StartWatcher(ctx, WatchConfig{Inboxes: []string{dir}, InitialScan: true, Debounce: time.Second}, nil)
	require.NoError(t, err)
	select {
	case a := <-arrivals:
		assert.Len(t, a.Files, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial arrival")
	}
}

func TestStartWatcher_NoInboxes(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
