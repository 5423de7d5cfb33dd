// Package sink provides flash sinks for hosts that stage firmware images on
// a filesystem.
package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrNotBegun = errors.New("sink: write before begin")
	ErrNoSpace  = errors.New("sink: not enough free space")
)

// File stages an image in <path>.part and renames it over path on End, so
// path only ever holds a complete image.
type File struct {
	path string
	log  *slog.Logger

	// freeSpace is swapped in tests.
	freeSpace func(dir string) (uint64, error)

	mu       sync.Mutex
	f        *os.File
	size     int64
	written  int64
	finished bool
}

func NewFile(log *slog.Logger, path string) *File {
	if log == nil {
		log = slog.Default()
	}
	return &File{path: path, log: log.With("component", "sink", "path", path), freeSpace: freeSpace}
}

func (s *File) Path() string { return s.path }

func (s *File) partPath() string { return s.path + ".part" }

// Begin reserves room for size bytes and opens a fresh staging file. Any
// previous staging file is discarded.
func (s *File) Begin(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
	s.finished = false

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if free, err := s.freeSpace(dir); err == nil && size > 0 && uint64(size) > free {
		return fmt.Errorf("%w: need %d bytes, %d available in %s", ErrNoSpace, size, free, dir)
	} else if err != nil && !errors.Is(err, errUnsupported) {
		return err
	}

	f, err := os.OpenFile(s.partPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.f, s.size, s.written = f, size, 0
	s.log.Info("staging image", "size", size)
	return nil
}

func (s *File) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrNotBegun
	}
	n, err := s.f.Write(p)
	s.written += int64(n)
	return n, err
}

// End syncs the staging file and commits it. A short image is discarded.
func (s *File) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrNotBegun
	}
	f := s.f
	s.f = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(s.partPath())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(s.partPath())
		return err
	}
	if s.size > 0 && s.written != s.size {
		_ = os.Remove(s.partPath())
		return fmt.Errorf("sink: wrote %d of %d bytes", s.written, s.size)
	}
	if err := os.Rename(s.partPath(), s.path); err != nil {
		return err
	}
	s.finished = true
	s.log.Info("image committed", "bytes", s.written)
	return nil
}

// IsFinished reports whether the last End committed a complete image.
func (s *File) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Abort discards an in-progress image.
func (s *File) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
}

func (s *File) abortLocked() {
	if s.f != nil {
		_ = s.f.Close()
		_ = os.Remove(s.partPath())
		s.f = nil
	}
}
