package workers

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"
)

var ErrUploadsDisabled = errors.New("artifact uploads disabled")

// Uploader stores one local file remotely and returns its URL.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// NoOpUploader is used when no bucket is configured; files stay on disk.
type NoOpUploader struct{}

func (NoOpUploader) UploadFile(context.Context, string) (string, error) {
	return "", ErrUploadsDisabled
}

// ArtifactWorker ships debug screenshots from the screenshot directory to
// object storage and removes the local copies.
type ArtifactWorker struct {
	dir      string
	uploader Uploader
	minAge   time.Duration
	now      func() time.Time
}

func NewArtifactWorker(dir string, uploader Uploader) *ArtifactWorker {
	if uploader == nil {
		uploader = NoOpUploader{}
	}
	return &ArtifactWorker{
		dir:      dir,
		uploader: uploader,
		minAge:   10 * time.Second,
		now:      time.Now,
	}
}

func (w *ArtifactWorker) Run(ctx context.Context, interval time.Duration) {
	if _, ok := w.uploader.(NoOpUploader); ok {
		log.Println("Artifact worker: no bucket configured, screenshots stay local")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Artifact worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch uploads every settled *.png in the directory. Files younger
// than minAge may still be written and are left for the next pass.
func (w *ArtifactWorker) ProcessBatch(ctx context.Context) (uploaded, failed int) {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*.png"))
	if err != nil {
		log.Printf("Artifact worker: glob error: %v", err)
		return 0, 0
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || w.now().Sub(info.ModTime()) < w.minAge {
			continue
		}

		url, err := w.uploader.UploadFile(ctx, path)
		if errors.Is(err, ErrUploadsDisabled) {
			return uploaded, failed
		}
		if err != nil {
			log.Printf("Artifact worker: failed %s: %v", path, err)
			failed++
			continue
		}

		if err := os.Remove(path); err != nil {
			log.Printf("Artifact worker: uploaded %s but could not remove it: %v", path, err)
		}
		log.Printf("Artifact worker: %s -> %s", filepath.Base(path), url)
		uploaded++
	}

	if uploaded > 0 || failed > 0 {
		log.Printf("Artifact worker: %d uploaded, %d failed", uploaded, failed)
	}
	return uploaded, failed
}
