package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ---------------------------------------------------------------------------
// Tailer follows a single NDJSON snapshot file and submits every complete
// line to an Ingestor.
// ---------------------------------------------------------------------------

// TailerOptions configures a Tailer.
type TailerOptions struct {
	// FromStart replays lines already in the file. Otherwise only lines
	// appended after Start are read.
	FromStart bool
	// PollInterval is the fallback re-read period for filesystems where
	// change notifications are unreliable.
	PollInterval time.Duration
}

// Tailer wakes on fsnotify write events for its file and falls back to
// polling.
type Tailer struct {
	filePath string
	ingestor *Ingestor
	opts     TailerOptions
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	linesRead  atomic.Int64
	parseErrs  atomic.Int64
	submitErrs atomic.Int64
	running    atomic.Bool
	startedAt  time.Time
}

// NewTailer creates a tailer for filePath. Call Start to begin.
func NewTailer(filePath string, ingestor *Ingestor, opts TailerOptions) *Tailer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Tailer{
		filePath: filepath.Clean(filePath),
		ingestor: ingestor,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// FilePath returns the path being tailed.
func (t *Tailer) FilePath() string { return t.filePath }

// Start opens the file and begins following it in the background. It
// returns once the file is open and the watch is in place.
func (t *Tailer) Start(ctx context.Context) error {
	f, err := os.Open(t.filePath)
	if err != nil {
		return fmt.Errorf("feed: open %s: %w", t.filePath, err)
	}
	if !t.opts.FromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("feed: seek to end of %s: %w", t.filePath, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return fmt.Errorf("feed: create watcher: %w", err)
	}
	// Watch the directory so truncation and re-creation are seen too.
	if err := watcher.Add(filepath.Dir(t.filePath)); err != nil {
		watcher.Close()
		f.Close()
		return fmt.Errorf("feed: watch %s: %w", t.filePath, err)
	}

	t.startedAt = time.Now().UTC()
	t.running.Store(true)
	t.wg.Add(1)
	slog.Info("feed tailer started", "file", t.filePath, "from_start", t.opts.FromStart)

	go func() {
		defer t.wg.Done()
		defer t.running.Store(false)
		defer watcher.Close()
		t.readLoop(ctx, f, watcher)
	}()
	return nil
}

// Stop signals the tailer to stop and waits for the read loop to exit.
func (t *Tailer) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
	t.wg.Wait()
	slog.Info("feed tailer stopped", "file", t.filePath, "lines_read", t.linesRead.Load())
}

// Wait blocks until the read loop exits.
func (t *Tailer) Wait() { t.wg.Wait() }

type fileReader struct {
	f       *os.File
	r       *bufio.Reader
	pos     int64
	partial []byte
}

func (t *Tailer) readLoop(ctx context.Context, f *os.File, watcher *fsnotify.Watcher) {
	pos, _ := f.Seek(0, io.SeekCurrent)
	fr := &fileReader{f: f, r: bufio.NewReader(f), pos: pos}
	defer func() { fr.f.Close() }()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	t.drain(ctx, fr)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != t.filePath {
				continue
			}
			if ev.Has(fsnotify.Create) {
				t.reopen(fr)
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				t.drain(ctx, fr)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("feed watcher error", "file", t.filePath, "error", err)
		case <-ticker.C:
			t.drain(ctx, fr)
		}
	}
}

// reopen switches to a re-created file and reads it from the start.
func (t *Tailer) reopen(fr *fileReader) {
	f, err := os.Open(t.filePath)
	if err != nil {
		slog.Warn("feed reopen failed", "file", t.filePath, "error", err)
		return
	}
	fr.f.Close()
	fr.f = f
	fr.r = bufio.NewReader(f)
	fr.pos = 0
	fr.partial = nil
}

// drain reads every complete line currently available. A file that shrank
// was truncated and is read again from the start.
func (t *Tailer) drain(ctx context.Context, fr *fileReader) {
	if info, err := fr.f.Stat(); err == nil && info.Size() < fr.pos {
		slog.Info("feed file truncated, rewinding", "file", t.filePath)
		if _, err := fr.f.Seek(0, io.SeekStart); err == nil {
			fr.r.Reset(fr.f)
			fr.pos = 0
			fr.partial = nil
		}
	}

	for {
		line, err := fr.r.ReadBytes('\n')
		fr.pos += int64(len(line))
		if len(line) > 0 {
			if len(fr.partial) > 0 {
				line = append(fr.partial, line...)
				fr.partial = nil
			}
			// Incomplete line; wait for the writer to finish it.
			if line[len(line)-1] != '\n' {
				fr.partial = line
				return
			}
			t.linesRead.Add(1)
			t.processLine(ctx, line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("feed read error", "file", t.filePath, "error", err)
			}
			return
		}
	}
}

func (t *Tailer) processLine(ctx context.Context, raw []byte) {
	l, err := ParseLine(raw)
	if errors.Is(err, ErrEmptyLine) {
		return
	}
	if err != nil {
		// Log only occasionally to avoid spam on garbage input.
		if t.parseErrs.Add(1)%100 == 1 {
			slog.Debug("feed: failed to parse line", "file", t.filePath, "error", err, "sample", truncate(string(raw), 120))
		}
		return
	}
	if err := t.ingestor.Submit(ctx, l); err != nil {
		t.submitErrs.Add(1)
		slog.Warn("feed: submit error", "file", t.filePath, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Status returns a snapshot of the tailer's counters.
func (t *Tailer) Status() Status {
	return Status{
		FilePath:   t.filePath,
		Active:     t.running.Load(),
		LinesRead:  t.linesRead.Load(),
		ParseErrs:  t.parseErrs.Load(),
		SubmitErrs: t.submitErrs.Load(),
		Applied:    t.ingestor.Applied(),
		StartedAt:  t.startedAt,
	}
}

// Status is a JSON-friendly view of tailer state.
type Status struct {
	FilePath   string    `json:"file_path"`
	Active     bool      `json:"active"`
	LinesRead  int64     `json:"lines_read"`
	ParseErrs  int64     `json:"parse_errors"`
	SubmitErrs int64     `json:"submit_errors"`
	Applied    int64     `json:"applied"`
	StartedAt  time.Time `json:"started_at"`
}
