package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"querybridge/internal/dberr"
)

// LocalSink writes export artifacts under a base directory.
type LocalSink struct {
	basePath string
}

// NewLocalSink creates the sink and ensures the base directory exists.
func NewLocalSink(basePath string) (*LocalSink, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, &dberr.ExportError{Reason: dberr.ExportUnwritable, Err: err}
	}
	return &LocalSink{basePath: basePath}, nil
}

func (s *LocalSink) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

func (s *LocalSink) Create(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	done := make(chan error, 1)

	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		done <- &dberr.ExportError{Reason: dberr.ExportUnwritable, Err: err}
		close(done)
		return nil, done
	}
	f, err := os.Create(full)
	if err != nil {
		done <- &dberr.ExportError{Reason: dberr.ExportUnwritable, Err: err}
		close(done)
		return nil, done
	}
	return &localWriter{f: f, done: done}, done
}

func (s *LocalSink) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
	}
	return f, nil
}

func (s *LocalSink) Remove(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
	}
	return nil
}

func (s *LocalSink) URL(key string) string {
	abs, err := filepath.Abs(s.path(key))
	if err != nil {
		abs = s.path(key)
	}
	return fmt.Sprintf("file://%s", abs)
}

type localWriter struct {
	f    *os.File
	done chan error
}

func (w *localWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
	}
	return n, nil
}

func (w *localWriter) Close() error {
	err := w.f.Close()
	if err != nil {
		err = &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
	}
	w.done <- err
	close(w.done)
	return err
}
