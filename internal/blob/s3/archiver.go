package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

const (
	reportPrefix      = "reports"
	reportContentType = "application/json"
)

// Archiver persists reconciliation reports as JSON objects laid out as
// reports/<wallet>/<YYYY-MM-DD>/<unix>.json.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewArchiver creates an Archiver. Any BlobWriter/BlobReader pair works;
// production wires the S3 Writer and Reader.
func NewArchiver(w domain.BlobWriter, r domain.BlobReader) *Archiver {
	return &Archiver{writer: w, reader: r}
}

// ReportPath returns the object key for wallet's report taken at.
func ReportPath(wallet string, at time.Time) string {
	at = at.UTC()
	return path.Join(reportPrefix, strings.ToLower(wallet), at.Format("2006-01-02"),
		strconv.FormatInt(at.Unix(), 10)+".json")
}

// Archive encodes report and uploads it.
func (a *Archiver) Archive(ctx context.Context, wallet string, at time.Time, report any) (domain.BlobInfo, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return domain.BlobInfo{}, fmt.Errorf("s3blob: encode report: %w", err)
	}
	key := ReportPath(wallet, at)
	if err := a.writer.Put(ctx, key, bytes.NewReader(data), reportContentType); err != nil {
		return domain.BlobInfo{}, err
	}
	return domain.BlobInfo{
		Path:         key,
		Size:         int64(len(data)),
		ContentType:  reportContentType,
		LastModified: at.UTC(),
	}, nil
}

// List returns wallet's archived reports, newest first.
func (a *Archiver) List(ctx context.Context, wallet string) ([]domain.BlobInfo, error) {
	infos, err := a.reader.List(ctx, path.Join(reportPrefix, strings.ToLower(wallet))+"/")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Path > infos[j].Path })
	return infos, nil
}

// Open decodes one archived report into out. Keys outside the wallet's
// prefix are domain.ErrNotFound.
func (a *Archiver) Open(ctx context.Context, wallet, key string, out any) error {
	key = path.Clean(strings.TrimPrefix(key, "/"))
	if !strings.HasPrefix(key, path.Join(reportPrefix, strings.ToLower(wallet))+"/") {
		return fmt.Errorf("s3blob: open %s: %w", key, domain.ErrNotFound)
	}
	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("s3blob: decode %s: %w", key, err)
	}
	return nil
}
