package message

import (
	"testing"
	"time"

	"github.com/wagate-io/wagate/internal/engine"
)

func TestNormalizeText(t *testing.T) {
	msg := Normalize(engine.RawMessage{
		ID:           "MSG1",
		ChatJID:      "5511999@s.whatsapp.net",
		SenderJID:    "5511999@s.whatsapp.net",
		SenderName:   "Alice",
		Body:         "hello",
		Type:         "text",
		TimestampSec: 1700000000,
	})
	if msg == nil {
		t.Fatal("Normalize() = nil for plain text message")
	}
	if msg.ID != "MSG1" || msg.Content != "hello" || msg.Kind != KindText {
		t.Errorf("msg = %+v", msg)
	}
	if msg.FromDisplayName != "Alice" {
		t.Errorf("display name = %q, want Alice", msg.FromDisplayName)
	}
	if msg.TimestampMillis != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", msg.TimestampMillis)
	}
	if msg.IsOutbound {
		t.Error("inbound message marked outbound")
	}
}

func TestNormalizeDropsNoiseChannels(t *testing.T) {
	tests := []struct {
		name string
		raw  engine.RawMessage
	}{
		{"status broadcast chat", engine.RawMessage{ChatJID: "status@broadcast", SenderJID: "x@s.whatsapp.net", Body: "hi", Type: "text"}},
		{"group chat", engine.RawMessage{ChatJID: "123-456@g.us", SenderJID: "x@s.whatsapp.net", Body: "hi", Type: "text"}},
		{"broadcast sender", engine.RawMessage{ChatJID: "x@s.whatsapp.net", SenderJID: "y@broadcast", Body: "hi", Type: "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := Normalize(tt.raw); msg != nil {
				t.Errorf("Normalize() = %+v, want nil", msg)
			}
		})
	}
}

func TestNormalizeMediaContent(t *testing.T) {
	tests := []struct {
		name        string
		raw         engine.RawMessage
		wantKind    Kind
		wantContent string
	}{
		{
			"image with caption",
			engine.RawMessage{Type: "image", Caption: "look at this", MimeType: "image/jpeg"},
			KindImage, "look at this",
		},
		{
			"image without caption",
			engine.RawMessage{Type: "image", MimeType: "image/jpeg"},
			KindImage, "[image]",
		},
		{
			"video without caption",
			engine.RawMessage{Type: "video"},
			KindVideo, "[video]",
		},
		{
			"audio",
			engine.RawMessage{Type: "audio", MimeType: "audio/ogg; codecs=opus"},
			KindAudio, "[audio]",
		},
		{
			"document",
			engine.RawMessage{Type: "document", FileName: "report.pdf"},
			KindDocument, "[document]",
		},
		{
			"sticker",
			engine.RawMessage{Type: "sticker"},
			KindSticker, "[sticker]",
		},
		{
			"location",
			engine.RawMessage{Type: "location"},
			KindLocation, "[location]",
		},
		{
			"contact card",
			engine.RawMessage{Type: "contact"},
			KindContact, "[contact card]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.raw.ID = "M"
			tt.raw.ChatJID = "a@s.whatsapp.net"
			tt.raw.SenderJID = "a@s.whatsapp.net"
			msg := Normalize(tt.raw)
			if msg == nil {
				t.Fatal("Normalize() = nil")
			}
			if msg.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", msg.Kind, tt.wantKind)
			}
			if msg.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", msg.Content, tt.wantContent)
			}
		})
	}
}

func TestNormalizeUnknownType(t *testing.T) {
	// Unknown payload with a text body still surfaces as text.
	msg := Normalize(engine.RawMessage{
		ChatJID: "a@s.whatsapp.net", SenderJID: "a@s.whatsapp.net",
		Type: "poll", Body: "which day works?",
	})
	if msg == nil {
		t.Fatal("Normalize() = nil for unknown type with body")
	}
	if msg.Kind != KindText || msg.Content != "which day works?" {
		t.Errorf("msg = %+v, want text passthrough", msg)
	}

	// Unknown payload without a body is protocol noise and is dropped.
	msg = Normalize(engine.RawMessage{
		ChatJID: "a@s.whatsapp.net", SenderJID: "a@s.whatsapp.net",
		Type: "protocol",
	})
	if msg != nil {
		t.Errorf("Normalize() = %+v for unknown empty type, want nil", msg)
	}
}

func TestNormalizeTimestampFallback(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := Normalize(engine.RawMessage{
		ChatJID: "a@s.whatsapp.net", SenderJID: "a@s.whatsapp.net",
		Type: "text", Body: "hi",
	})
	after := time.Now().UnixMilli()
	if msg == nil {
		t.Fatal("Normalize() = nil")
	}
	if msg.TimestampMillis < before || msg.TimestampMillis > after {
		t.Errorf("timestamp = %d, want within [%d, %d]", msg.TimestampMillis, before, after)
	}
}

func TestNormalizeQuoted(t *testing.T) {
	base := engine.RawMessage{
		ChatJID: "a@s.whatsapp.net", SenderJID: "a@s.whatsapp.net",
		Type: "text", Body: "replying",
	}

	t.Run("quoted text body", func(t *testing.T) {
		raw := base
		raw.QuotedID = "Q1"
		raw.QuotedBody = "original"
		raw.QuotedType = "text"
		msg := Normalize(raw)
		if msg.Quoted == nil {
			t.Fatal("Quoted = nil")
		}
		if msg.Quoted.ID != "Q1" || msg.Quoted.Content != "original" {
			t.Errorf("quoted = %+v", msg.Quoted)
		}
	})

	t.Run("quoted media without body gets placeholder", func(t *testing.T) {
		raw := base
		raw.QuotedID = "Q2"
		raw.QuotedType = "image"
		msg := Normalize(raw)
		if msg.Quoted == nil || msg.Quoted.Content != "[image]" {
			t.Errorf("quoted = %+v, want [image] placeholder", msg.Quoted)
		}
	})

	t.Run("quoted unknown without body gets generic placeholder", func(t *testing.T) {
		raw := base
		raw.QuotedID = "Q3"
		msg := Normalize(raw)
		if msg.Quoted == nil || msg.Quoted.Content != "[message]" {
			t.Errorf("quoted = %+v, want [message] placeholder", msg.Quoted)
		}
	})

	t.Run("no quote", func(t *testing.T) {
		msg := Normalize(base)
		if msg.Quoted != nil {
			t.Errorf("Quoted = %+v, want nil", msg.Quoted)
		}
	})
}

func TestNormalizeOutboundFlag(t *testing.T) {
	msg := Normalize(engine.RawMessage{
		ChatJID: "a@s.whatsapp.net", SenderJID: "me@s.whatsapp.net",
		Type: "text", Body: "sent from phone", FromMe: true,
	})
	if msg == nil {
		t.Fatal("Normalize() = nil")
	}
	if !msg.IsOutbound {
		t.Error("IsOutbound = false for FromMe message")
	}
}
