package message

import (
	"strings"
	"time"

	"github.com/wagate-io/wagate/internal/engine"
)

// placeholders are the human-readable content fallbacks for non-text kinds.
var placeholders = map[Kind]string{
	KindImage:    "[image]",
	KindVideo:    "[video]",
	KindAudio:    "[audio]",
	KindDocument: "[document]",
	KindSticker:  "[sticker]",
	KindLocation: "[location]",
	KindContact:  "[contact card]",
}

var rawKinds = map[string]Kind{
	"text":     KindText,
	"image":    KindImage,
	"video":    KindVideo,
	"audio":    KindAudio,
	"document": KindDocument,
	"sticker":  KindSticker,
	"location": KindLocation,
	"contact":  KindContact,
}

// Normalize maps a raw engine event to a CanonicalMessage. Returns nil for
// status-broadcast and group channels, and for unrecognized empty events,
// so those are never surfaced to subscribers.
func Normalize(raw engine.RawMessage) *CanonicalMessage {
	if isNoise(raw.ChatJID) || isNoise(raw.SenderJID) {
		return nil
	}

	kind, ok := rawKinds[raw.Type]
	if !ok {
		// Unrecognized payloads with a text body still surface as text;
		// anything else (receipts, protocol frames) is dropped.
		if raw.Body == "" {
			return nil
		}
		kind = KindText
	}

	content := raw.Body
	if kind != KindText {
		if raw.Caption != "" {
			content = raw.Caption
		} else {
			content = placeholders[kind]
		}
	}

	ts := raw.TimestampSec * 1000
	if raw.TimestampSec <= 0 {
		ts = time.Now().UnixMilli()
	}

	msg := &CanonicalMessage{
		ID:              raw.ID,
		FromAddress:     raw.SenderJID,
		FromDisplayName: raw.SenderName,
		Content:         content,
		Kind:            kind,
		TimestampMillis: ts,
		IsOutbound:      raw.FromMe,
		MediaMimeType:   raw.MimeType,
		Caption:         raw.Caption,
		FileName:        raw.FileName,
	}

	if raw.QuotedID != "" {
		quotedContent := raw.QuotedBody
		if quotedContent == "" {
			if qk, ok := rawKinds[raw.QuotedType]; ok && qk != KindText {
				quotedContent = placeholders[qk]
			} else {
				quotedContent = "[message]"
			}
		}
		msg.Quoted = &Quoted{ID: raw.QuotedID, Content: quotedContent}
	}

	return msg
}

// isNoise reports whether an address belongs to a status-broadcast or group
// channel; those are filtered out before normalization.
func isNoise(addr string) bool {
	return strings.HasSuffix(addr, "@broadcast") || strings.HasSuffix(addr, "@g.us")
}
