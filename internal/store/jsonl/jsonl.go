// Package jsonl journals events as JSON lines. The active file rolls over
// to numbered segments (path.1 newest) once it reaches the size limit, and
// queries scan every segment still on disk.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gameoverlay/gameoverlay/internal/store"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// maxLine bounds a single journaled event when reading back.
const maxLine = 16 << 20

type Store struct {
	path     string
	limit    int64
	segments int

	mu   sync.Mutex
	file *os.File
	size int64
}

var _ store.EventStore = (*Store)(nil)

// New opens or creates the journal at path. Zero limits select 16 MiB
// and three rolled segments.
func New(path string, maxSizeMB int, maxBackups int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl path is empty")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 16
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	s := &Store{path: path, limit: int64(maxSizeMB) << 20, segments: maxBackups}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) openLocked() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat journal: %w", err)
	}
	s.file, s.size = f, info.Size()
	return nil
}

func (s *Store) AppendEvent(_ context.Context, ev types.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("journal %s is closed", s.path)
	}
	if s.size > 0 && s.size+int64(len(line)) > s.limit {
		if err := s.rollLocked(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// rollLocked shifts path.N-1 to path.N, the active file to path.1, and
// starts a fresh active file. The oldest segment falls off the end.
func (s *Store) rollLocked() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close journal for roll: %w", err)
	}
	s.file = nil
	for i := s.segments - 1; i >= 1; i-- {
		if err := os.Rename(s.segment(i), s.segment(i+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("roll journal segment %d: %w", i, err)
		}
	}
	if err := os.Rename(s.path, s.segment(1)); err != nil {
		return fmt.Errorf("roll journal: %w", err)
	}
	return s.openLocked()
}

func (s *Store) segment(i int) string { return fmt.Sprintf("%s.%d", s.path, i) }

// QueryEvents scans the rolled segments and the active file.
func (s *Store) QueryEvents(ctx context.Context, q types.EventQuery) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]string, 0, s.segments+1)
	for i := s.segments; i >= 1; i-- {
		files = append(files, s.segment(i))
	}
	files = append(files, s.path)

	var matched []types.Event
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := scan(name, func(ev types.Event) {
			if store.Match(ev, q) {
				matched = append(matched, ev)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return store.Window(matched, q), nil
}

// scan decodes every line of name. A missing segment is skipped, and so is
// a torn final line left by a crash.
func scan(name string, fn func(types.Event)) error {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal segment: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		var ev types.Event
		if json.Unmarshal(sc.Bytes(), &ev) != nil {
			continue
		}
		fn(ev)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read journal segment %s: %w", name, err)
	}
	return nil
}

// Path returns the active file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
