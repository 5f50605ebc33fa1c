// Package display delivers rendered frames to their destinations: a PNG
// preview on disk and the e-paper panel.
package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"

	"gcalpaper/internal/config"
)

// Sink shows one frame.
type Sink interface {
	Show(ctx context.Context, img image.Image) error
}

// PNGSink writes each frame to Path, replacing the previous one
// atomically.
type PNGSink struct {
	Path string

	mu   sync.RWMutex
	last []byte
}

func NewPNGSink(path string) *PNGSink {
	return &PNGSink{Path: path}
}

func (p *PNGSink) Show(_ context.Context, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("display: encode png: %w", err)
	}
	if err := config.WriteFileAtomic(p.Path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("display: write %s: %w", p.Path, err)
	}
	p.mu.Lock()
	p.last = buf.Bytes()
	p.mu.Unlock()
	return nil
}

// PNG returns the last frame shown, reading it back from disk after a
// restart. os.ErrNotExist means nothing was rendered yet.
func (p *PNGSink) PNG() ([]byte, error) {
	p.mu.RLock()
	last := p.last
	p.mu.RUnlock()
	if last != nil {
		return last, nil
	}
	return os.ReadFile(p.Path)
}

// MultiSink shows the frame on every sink, continuing past failures.
type MultiSink []Sink

func (m MultiSink) Show(ctx context.Context, img image.Image) error {
	var errs []error
	for _, s := range m {
		if err := s.Show(ctx, img); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
