package bus

import "time"

// Kind names a domain event. Kinds are dot-namespaced so subscribers can
// filter by prefix (e.g. "session." receives every lifecycle event).
type Kind string

const (
	KindSessionQR           Kind = "session.qr"
	KindSessionReady        Kind = "session.ready"
	KindSessionState        Kind = "session.state"
	KindSessionDisconnected Kind = "session.disconnected"
	KindSessionLoggedOut    Kind = "session.logged_out"
	KindSessionError        Kind = "session.error"
	KindMessageReceived     Kind = "message.received"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      Kind
	Identity  string
	Timestamp time.Time
	Payload   any
}

// QRPayload carries the latest pairing code rendered as a PNG data URI.
type QRPayload struct {
	DataURI string
}

// StatePayload is published on every accepted state transition.
type StatePayload struct {
	From string
	To   string
}

// ReadyPayload is published once a session reaches Connected.
type ReadyPayload struct {
	UserID      string
	DisplayName string
}

// ErrorPayload carries a terminal session error.
type ErrorPayload struct {
	Message string
}
