// Package message normalizes engine-native inbound events into canonical,
// engine-independent message records.
package message

// Kind classifies a canonical message.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
	KindLocation Kind = "location"
	KindContact  Kind = "contact"
)

// Quoted references the message a canonical message replies to.
type Quoted struct {
	ID      string
	Content string
}

// CanonicalMessage is the normalized inbound message. It is immutable once
// constructed and handed to subscribers; it is not persisted by this core.
type CanonicalMessage struct {
	ID              string
	FromAddress     string
	FromDisplayName string
	Content         string
	Kind            Kind
	TimestampMillis int64
	IsOutbound      bool
	Quoted          *Quoted
	MediaRef        string
	MediaMimeType   string
	Caption         string
	FileName        string
}
