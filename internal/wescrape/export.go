package wescrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Run kinds.
const (
	KindLinks   = "links"
	KindDetails = "details"
)

// Default output file names.
const (
	LinksFile   = "wine_links.csv"
	DetailsFile = "wine_info.csv"
)

// RunSummary is published when a run finishes writing its output.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Kind        string    `json:"kind"`
	Rows        int       `json:"rows"`
	Errors      int       `json:"errors"`
	Output      string    `json:"output"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// DefaultOutput returns root/<YYYYMMDD UTC>/name.
func DefaultOutput(root string, now time.Time, name string) string {
	return filepath.Join(root, now.UTC().Format("20060102"), name)
}

// exportRun uploads the output CSV and announces the run. Both steps are
// skipped when their backend is not configured.
func (s *Scraper) exportRun(ctx context.Context, summary RunSummary) error {
	summary.FinishedAt = s.clock.Now().UTC()
	summary.StartedAt = summary.StartedAt.UTC()

	if s.blobs != nil {
		data, err := os.ReadFile(summary.Output)
		if err != nil {
			return fmt.Errorf("read output for upload: %w", err)
		}
		object := path.Join(summary.Kind, summary.FinishedAt.Format("2006-01-02"),
			summary.RunID+"-"+filepath.Base(summary.Output))
		uri, err := s.blobs.PutObject(ctx, object, "text/csv; charset=utf-8", bytesReader(data))
		if err != nil {
			return fmt.Errorf("upload %s: %w", object, err)
		}
		summary.ArtifactURI = uri
		s.logger.Info("output uploaded", zap.String("uri", uri))
	}

	if s.publisher != nil && s.cfg.Topic != "" {
		msgID, err := s.publisher.Publish(ctx, s.cfg.Topic, summary)
		if err != nil {
			return fmt.Errorf("publish run summary: %w", err)
		}
		s.logger.Info("run summary published", zap.String("topic", s.cfg.Topic), zap.String("message_id", msgID))
	}
	return nil
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
