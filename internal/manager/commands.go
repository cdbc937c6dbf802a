package manager

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wagate-io/wagate/internal/engine"
	"github.com/wagate-io/wagate/internal/status"
)

// SendRequest describes an outbound message. MediaSource, when set, is a
// local file path; MediaKind/FileName/MimeType are derived when omitted.
type SendRequest struct {
	To              string
	Message         string
	MediaSource     string
	MediaKind       string
	Caption         string
	FileName        string
	QuotedMessageID string
	Mentions        []string
}

// SendMessage sends a text or media message through the live engine handle.
// Returns the server message id.
func (m *Manager) SendMessage(ctx context.Context, req SendRequest) (string, error) {
	eng, err := m.liveEngine()
	if err != nil {
		return "", err
	}
	opts := engine.SendOptions{QuotedID: req.QuotedMessageID, Mentions: req.Mentions}

	if req.MediaSource == "" {
		return eng.SendText(ctx, req.To, req.Message, opts)
	}

	data, err := os.ReadFile(req.MediaSource)
	if err != nil {
		return "", fmt.Errorf("read media source: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(req.MediaSource))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	kind := req.MediaKind
	if kind == "" {
		kind = kindFromMime(mimeType)
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.MediaSource)
	}
	caption := req.Caption
	if caption == "" {
		caption = req.Message
	}

	return eng.SendMedia(ctx, req.To, engine.MediaUpload{
		Data:     data,
		MimeType: mimeType,
		Kind:     kind,
		Caption:  caption,
		FileName: fileName,
	}, opts)
}

// MarkAsRead sends read receipts for the given message keys.
func (m *Manager) MarkAsRead(ctx context.Context, keys []engine.MessageKey) error {
	eng, err := m.liveEngine()
	if err != nil {
		return err
	}
	return eng.MarkRead(ctx, keys)
}

// CheckAddressExists reports whether an address is registered.
func (m *Manager) CheckAddressExists(ctx context.Context, addr string) (bool, error) {
	eng, err := m.liveEngine()
	if err != nil {
		return false, err
	}
	return eng.AddressExists(ctx, addr)
}

// ProfileImageURL returns the profile image URL for an address, or "" when
// none is set.
func (m *Manager) ProfileImageURL(ctx context.Context, addr string) (string, error) {
	eng, err := m.liveEngine()
	if err != nil {
		return "", err
	}
	return eng.ProfileImageURL(ctx, addr)
}

func (m *Manager) liveEngine() (engine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eng == nil || m.machine.Current() != status.Connected {
		return nil, ErrNotConnected
	}
	return m.eng, nil
}

func kindFromMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
