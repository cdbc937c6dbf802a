// Package media retrieves and persists media payloads referenced by inbound
// messages.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wagate-io/wagate/internal/engine"
	"go.uber.org/zap"
)

// extensions maps MIME types to file extensions. Unknown types fall back to
// a generic binary extension.
var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"audio/wav":       ".wav",
	"application/pdf": ".pdf",
	"text/vcard":      ".vcf",
}

const fallbackExtension = ".bin"

// Downloader is the engine capability the fetcher needs.
type Downloader interface {
	DownloadMedia(ctx context.Context, msgID string) (data []byte, mimeType string, err error)
}

// Fetcher downloads media payloads into a dedicated directory and returns
// local references. A message whose media cannot be fetched is still a valid
// message, so Fetch never fails loudly.
type Fetcher struct {
	dir    string
	logger *zap.Logger
}

// NewFetcher creates a fetcher writing into dir.
func NewFetcher(dir string, logger *zap.Logger) *Fetcher {
	return &Fetcher{dir: dir, logger: logger}
}

// Fetch downloads the media payload referenced by raw and writes it to the
// media directory. Returns the local path, or "" on any failure.
func (f *Fetcher) Fetch(ctx context.Context, dl Downloader, raw engine.RawMessage) string {
	data, mimeType, err := dl.DownloadMedia(ctx, raw.ID)
	if err != nil {
		f.logger.Warn("media download failed", zap.String("msg_id", raw.ID), zap.Error(err))
		return ""
	}
	if len(data) == 0 {
		f.logger.Warn("media download returned empty payload", zap.String("msg_id", raw.ID))
		return ""
	}
	if mimeType == "" {
		mimeType = raw.MimeType
	}

	if err := os.MkdirAll(f.dir, 0700); err != nil {
		f.logger.Warn("create media dir failed", zap.String("dir", f.dir), zap.Error(err))
		return ""
	}

	name := fmt.Sprintf("%s_%d%s", sanitizeID(raw.ID), time.Now().UnixNano(), ExtensionFor(mimeType))
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		f.logger.Warn("write media file failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// ExtensionFor returns the file extension for a MIME type. Parameters after
// ";" are ignored (e.g. "audio/ogg; codecs=opus").
func ExtensionFor(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if ext, ok := extensions[base]; ok {
		return ext
	}
	return fallbackExtension
}

// sanitizeID keeps message ids filesystem-safe.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}
