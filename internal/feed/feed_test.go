package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

const (
	lineA = `{"mode":"append","snapshot":{"nodes":[{"id":"T::a","type":"T"}],"edges":[]}}`
	lineB = `{"snapshot":{"nodes":[{"id":"T::b","type":"T"}],"edges":[]}}`
)

type collector struct {
	mu    sync.Mutex
	lines []Line
	fail  error
}

func (c *collector) handle(_ context.Context, l Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.lines = append(c.lines, l)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func appendTo(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestParseLine(t *testing.T) {
	l, err := ParseLine([]byte(lineB))
	require.NoError(t, err)
	assert.Equal(t, graph.MergeAppend, l.Mode)
	assert.Equal(t, []string{"T::b"}, l.Snapshot.NodeIDs())

	_, err = ParseLine([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyLine)

	_, err = ParseLine([]byte(`{"mode":"merge"}`))
	assert.ErrorIs(t, err, graph.ErrUnknownMergeMode)

	_, err = ParseLine([]byte(`{nope`))
	assert.Error(t, err)
}

func TestReadAll(t *testing.T) {
	lines, err := ReadAll(strings.NewReader(lineA + "\n\n" + lineB + "\n"))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "T::a", lines[0].Snapshot.Nodes[0].ID)

	_, err = ReadAll(strings.NewReader(lineA + "\n{bad\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestIngestor_CountsOnlyApplied(t *testing.T) {
	c := &collector{}
	ing := NewIngestor(c.handle, nil)
	require.NoError(t, ing.Submit(context.Background(), Line{}))

	c.fail = errors.New("rejected")
	assert.Error(t, ing.Submit(context.Background(), Line{}))
	assert.Equal(t, int64(1), ing.Applied())
}

func TestTailer_FromStartThenFollows(t *testing.T) {
	path := writeFile(t, lineA+"\n")
	c := &collector{}
	tl := NewTailer(path, NewIngestor(c.handle, nil), TailerOptions{FromStart: true, PollInterval: 20 * time.Millisecond})
	require.NoError(t, tl.Start(context.Background()))
	defer tl.Stop()

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// A partial line is held back until its newline arrives.
	appendTo(t, path, lineB[:10])
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, c.count())

	appendTo(t, path, lineB[10:]+"\n")
	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	st := tl.Status()
	assert.True(t, st.Active)
	assert.Equal(t, int64(2), st.Applied)
}

func TestTailer_SkipsExistingAndBadLines(t *testing.T) {
	path := writeFile(t, lineA+"\n")
	c := &collector{}
	tl := NewTailer(path, NewIngestor(c.handle, nil), TailerOptions{PollInterval: 20 * time.Millisecond})
	require.NoError(t, tl.Start(context.Background()))
	defer tl.Stop()

	appendTo(t, path, "garbage\n"+lineB+"\n")
	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "T::b", c.lines[0].Snapshot.Nodes[0].ID)
	assert.Equal(t, int64(1), tl.Status().ParseErrs)
}

func TestTailer_MissingFile(t *testing.T) {
	tl := NewTailer(filepath.Join(t.TempDir(), "nope.ndjson"), NewIngestor((&collector{}).handle, nil), TailerOptions{})
	assert.Error(t, tl.Start(context.Background()))
}

func TestRegistry_Lifecycle(t *testing.T) {
	path := writeFile(t, lineA+"\n")
	c := &collector{}
	r := NewRegistry(TailerOptions{PollInterval: 20 * time.Millisecond}, nil)
	defer r.StopAll()

	_, err := r.Start(context.Background(), "s1", path, true, c.handle)
	require.NoError(t, err)
	_, err = r.Start(context.Background(), "s1", path, true, c.handle)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	st, err := r.Status("s1")
	require.NoError(t, err)
	assert.Equal(t, path, st.FilePath)

	st, err = r.Stop("s1")
	require.NoError(t, err)
	assert.False(t, st.Active)
	_, err = r.Stop("s1")
	assert.ErrorIs(t, err, ErrNotRunning)
}
