package engine

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// toRawMessage translates a live whatsmeow message event into the
// engine-native RawMessage handed to the lifecycle core.
func toRawMessage(evt *events.Message) RawMessage {
	msg := evt.Message
	raw := RawMessage{
		ID:           evt.Info.ID,
		ChatJID:      evt.Info.Chat.ToNonAD().String(),
		SenderJID:    evt.Info.Sender.ToNonAD().String(),
		SenderName:   evt.Info.PushName,
		Body:         extractTextBody(msg),
		Type:         detectMessageType(msg),
		FromMe:       evt.Info.IsFromMe,
		TimestampSec: evt.Info.Timestamp.Unix(),
	}

	switch {
	case msg.GetImageMessage() != nil:
		raw.MimeType = msg.GetImageMessage().GetMimetype()
		raw.Caption = msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		raw.MimeType = msg.GetVideoMessage().GetMimetype()
		raw.Caption = msg.GetVideoMessage().GetCaption()
	case msg.GetAudioMessage() != nil:
		raw.MimeType = msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		raw.MimeType = msg.GetDocumentMessage().GetMimetype()
		raw.Caption = msg.GetDocumentMessage().GetCaption()
		raw.FileName = msg.GetDocumentMessage().GetFileName()
	case msg.GetStickerMessage() != nil:
		raw.MimeType = msg.GetStickerMessage().GetMimetype()
	}

	if ci := contextInfo(msg); ci != nil && ci.GetStanzaID() != "" {
		raw.QuotedID = ci.GetStanzaID()
		raw.QuotedBody = extractTextBody(ci.GetQuotedMessage())
		raw.QuotedType = detectMessageType(ci.GetQuotedMessage())
	}

	return raw
}

func contextInfo(msg *waE2E.Message) *waE2E.ContextInfo {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetContextInfo()
	default:
		return nil
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
