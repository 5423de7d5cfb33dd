package sink

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFileCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw", "image.bin")
	s := NewFile(quiet(), path)
	img := bytes.Repeat([]byte{0xab}, 300)

	if err := s.Begin(int64(len(img))); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for off := 0; off < len(img); off += 128 {
		end := min(off+128, len(img))
		if n, err := s.Write(img[off:end]); err != nil || n != end-off {
			t.Fatalf("Write = %d, %v", n, err)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("image visible before End")
	}
	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if !s.IsFinished() {
		t.Fatal("IsFinished = false after End")
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, img) {
		t.Fatalf("committed image differs: %v", err)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatal("staging file left behind")
	}
}

func TestFileShortImageDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFile(quiet(), path)
	if err := s.Begin(10); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, _ = s.Write([]byte("short"))
	if err := s.End(); err == nil {
		t.Fatal("End accepted a short image")
	}
	if s.IsFinished() {
		t.Fatal("IsFinished = true for a short image")
	}
	got, _ := os.ReadFile(path)
	if string(got) != "old" {
		t.Fatalf("previous image replaced: %q", got)
	}
}

func TestFileNoSpace(t *testing.T) {
	s := NewFile(quiet(), filepath.Join(t.TempDir(), "image.bin"))
	s.freeSpace = func(string) (uint64, error) { return 100, nil }
	if err := s.Begin(101); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("err = %v, want ErrNoSpace", err)
	}
	if _, err := s.Write([]byte{1}); !errors.Is(err, ErrNotBegun) {
		t.Fatalf("write after failed Begin err = %v", err)
	}
}

func TestFileWriteBeforeBegin(t *testing.T) {
	s := NewFile(quiet(), filepath.Join(t.TempDir(), "image.bin"))
	if _, err := s.Write([]byte{1}); !errors.Is(err, ErrNotBegun) {
		t.Fatalf("err = %v", err)
	}
	if err := s.End(); !errors.Is(err, ErrNotBegun) {
		t.Fatalf("End err = %v", err)
	}
}

func TestFileAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	s := NewFile(quiet(), path)
	if err := s.Begin(4); err != nil {
		t.Fatal(err)
	}
	_, _ = s.Write([]byte("ab"))
	s.Abort()
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatal("staging file kept after Abort")
	}
}

func TestFreeSpace(t *testing.T) {
	free, err := freeSpace(t.TempDir())
	if errors.Is(err, errUnsupported) {
		t.Skip(err)
	}
	if err != nil || free == 0 {
		t.Fatalf("freeSpace = %d, %v", free, err)
	}
}
