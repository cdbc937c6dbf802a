// Package engine defines the capability surface of the browser-automation
// engine that drives a WhatsApp Web session. The lifecycle core consumes
// only the Engine interface; the whatsmeow-backed adapter in this package is
// one implementation, and tests substitute fakes through Factory.
package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrWorkDirBusy reports that engine startup failed because another engine
// instance is still bound to the same working directory. The lifecycle
// manager retries exactly once with a freshly named directory.
var ErrWorkDirBusy = errors.New("engine working directory busy")

// Identity describes the account the engine is logged in as.
type Identity struct {
	ID          string
	DisplayName string
}

// MessageKey identifies a message for read receipts.
type MessageKey struct {
	ChatJID   string
	SenderJID string
	MsgID     string
	FromMe    bool
}

// StateKind enumerates engine connection signals.
type StateKind string

const (
	StateConnected    StateKind = "connected"
	StateDisconnected StateKind = "disconnected"
	StateLoggedOut    StateKind = "logged_out"
)

// StateChange is a connection signal from the engine. The underlying status
// stream is not strictly monotonic during the login handshake; the lifecycle
// manager decides which signals to honor.
type StateChange struct {
	Kind   StateKind
	Reason string
}

// RawMessage is the engine-native inbound message event, before
// normalization. Timestamp is in engine-native seconds since epoch.
type RawMessage struct {
	ID           string
	ChatJID      string
	SenderJID    string
	SenderName   string
	Body         string
	Type         string
	MimeType     string
	FileName     string
	Caption      string
	FromMe       bool
	TimestampSec int64
	QuotedID     string
	QuotedBody   string
	QuotedType   string
}

// Handlers are the callbacks an engine invokes. All must be set before Start.
type Handlers struct {
	QR      func(code string)
	State   func(StateChange)
	Message func(RawMessage)
}

// MediaUpload carries an outbound media payload.
type MediaUpload struct {
	Data     []byte
	MimeType string
	Kind     string // image, video, audio, document
	Caption  string
	FileName string
}

// SendOptions carries optional send parameters.
type SendOptions struct {
	QuotedID string
	Mentions []string
}

// Engine is the opaque automation-engine handle. Start begins the login or
// resume flow using the credentials in the working directory the engine was
// created with; Close releases the instance and its directory.
type Engine interface {
	SetHandlers(h Handlers)
	Start(ctx context.Context) error
	Close()
	LoggedIn() bool
	HostIdentity() (Identity, bool)

	SendText(ctx context.Context, to, body string, opts SendOptions) (string, error)
	SendMedia(ctx context.Context, to string, media MediaUpload, opts SendOptions) (string, error)
	DownloadMedia(ctx context.Context, msgID string) (data []byte, mimeType string, err error)
	MarkRead(ctx context.Context, keys []MessageKey) error
	AddressExists(ctx context.Context, addr string) (bool, error)
	ProfileImageURL(ctx context.Context, addr string) (string, error)
	Logout(ctx context.Context) error
}

// Factory creates an engine instance bound to a working directory.
type Factory func(ctx context.Context, workDir string, logger *zap.Logger) (Engine, error)
