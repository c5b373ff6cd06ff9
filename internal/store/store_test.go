package store_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/mcpchat-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreImplementations(t *testing.T) {
	var _ store.Store = (*store.MemoryStore)(nil)
	var _ store.Store = (*store.FileStore)(nil)
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemory()

	_, ok := s.Get(store.KeyAccessToken)
	assert.False(t, ok)

	require.NoError(t, s.Set(store.KeyAccessToken, "tok"))
	v, ok := s.Get(store.KeyAccessToken)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	require.NoError(t, s.Delete(store.KeyAccessToken))
	_, ok = s.Get(store.KeyAccessToken)
	assert.False(t, ok)

	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	s, err := store.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(store.KeySelectedSessionID, "sess-1"))
	require.NoError(t, s.Set(store.KeyAccessToken, "token"))
	require.NoError(t, s.Delete(store.KeyAccessToken))

	reopened, err := store.OpenFile(path)
	require.NoError(t, err)

	v, ok := reopened.Get(store.KeySelectedSessionID)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", v)
	_, ok = reopened.Get(store.KeyAccessToken)
	assert.False(t, ok, "deleted key should not survive reopen")
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	s, err := store.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Clear())

	reopened, err := store.OpenFile(path)
	require.NoError(t, err)
	_, ok := reopened.Get("k")
	assert.False(t, ok)
}

func TestFileStoreMultilineValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	value := `[{"id":"1","content":"line one\nline two: with colon"}]`

	s, err := store.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(store.KeyChatMessages, value))

	reopened, err := store.OpenFile(path)
	require.NoError(t, err)
	got, _ := reopened.Get(store.KeyChatMessages)
	assert.Equal(t, value, got)
}

type recorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *recorder) write(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, v)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func TestDebouncerCoalescesToLastWrite(t *testing.T) {
	rec := &recorder{}
	d := store.NewDebouncer(30*time.Millisecond, rec.write)

	d.Schedule("one")
	d.Schedule("two")
	d.Schedule("three")

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	// No further writes arrive after the window closes.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"three"}, rec.snapshot())
	assert.False(t, d.Pending())
}

func TestDebouncerResetsTimer(t *testing.T) {
	rec := &recorder{}
	d := store.NewDebouncer(80*time.Millisecond, rec.write)

	d.Schedule("a")
	time.Sleep(40 * time.Millisecond)
	d.Schedule("b")
	time.Sleep(50 * time.Millisecond)

	// 90ms since first schedule but only 50ms since the reset.
	assert.Empty(t, rec.snapshot())

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b"}, rec.snapshot())
}

func TestDebouncerFlushAndClose(t *testing.T) {
	rec := &recorder{}
	d := store.NewDebouncer(time.Hour, rec.write)

	d.Flush()
	assert.Empty(t, rec.snapshot(), "flush with nothing pending is a no-op")

	d.Schedule("x")
	assert.True(t, d.Pending())
	d.Close()
	assert.Equal(t, []string{"x"}, rec.snapshot())

	d.Schedule("ignored")
	assert.False(t, d.Pending())
}

func TestDebouncerCancelDropsPending(t *testing.T) {
	rec := &recorder{}
	d := store.NewDebouncer(20*time.Millisecond, rec.write)

	d.Schedule("secret")
	d.Cancel()
	assert.False(t, d.Pending())

	time.Sleep(50 * time.Millisecond)
	d.Close()
	assert.Empty(t, rec.snapshot())

	d2 := store.NewDebouncer(20*time.Millisecond, rec.write)
	d2.Cancel()
	d2.Schedule("after")
	d2.Flush()
	assert.Equal(t, []string{"after"}, rec.snapshot(), "cancel does not close the debouncer")
}
