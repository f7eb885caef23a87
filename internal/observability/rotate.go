package observability

import (
	"fmt"
	"os"
	"sync"
)

const (
	// DefaultMaxLogSize is the size at which the log file rotates.
	DefaultMaxLogSize = 10 << 20 // 10 MiB

	// DefaultMaxLogHistory is the number of rotated files kept.
	DefaultMaxLogHistory = 3
)

// RotatingWriter is an io.Writer that rotates the underlying file when it
// exceeds a size limit. Rotation renames daemon.log to daemon.log.1,
// shifting older history up to the configured limit.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	history int
	file    *os.File
	size    int64
}

// NewRotatingWriter opens (or creates) the log file at path.
func NewRotatingWriter(path string, maxSize int64, history int) (*RotatingWriter, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if history <= 0 {
		history = DefaultMaxLogHistory
	}
	w := &RotatingWriter{path: path, maxSize: maxSize, history: history}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends to the log file, rotating first if the write would push the
// file past the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	// Shift history: .2 -> .3, .1 -> .2, current -> .1. The oldest falls off.
	for i := w.history - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	if err := os.Rename(w.path, w.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return w.open()
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
