package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	defaultMaxSize = 2 * 1024 * 1024 // 2MB
	defaultBackups = 1
)

type Options struct {
	MaxSize int64
	Backups int
	Level   string
}

var debugEnabled atomic.Bool

type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
	backups int
}

// Setup routes the standard logger to stdout and a size-rotating file at logPath.
func Setup(logPath string, opts Options) (*RotatingWriter, error) {
	rw, err := NewRotatingWriter(logPath, opts)
	if err != nil {
		return nil, err
	}
	SetLevel(opts.Level)

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(logPath string, opts Options) (*RotatingWriter, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.Backups <= 0 {
		opts.Backups = defaultBackups
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	size := int64(0)
	if info, _ := f.Stat(); info != nil {
		size = info.Size()
	}

	rw := &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: opts.MaxSize,
		backups: opts.Backups,
	}
	if size > rw.maxSize {
		rw.rotate()
	}
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

// rotate shifts path.1 .. path.N-1 up by one and moves the live file to path.1.
func (w *RotatingWriter) rotate() {
	w.file.Close()

	os.Remove(w.backupName(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		os.Rename(w.backupName(i), w.backupName(i+1))
	}
	os.Rename(w.path, w.backupName(1))

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) backupName(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func SetLevel(level string) {
	debugEnabled.Store(strings.EqualFold(strings.TrimSpace(level), "debug"))
}

// Debugf logs through the standard logger only when the level is debug.
func Debugf(format string, args ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	log.Output(2, "[DEBUG] "+fmt.Sprintf(format, args...))
}
