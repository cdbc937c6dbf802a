package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

const recentMessageCap = 512

// whatsmeowEngine drives a WhatsApp Web session through the whatsmeow client.
// The credential bundle lives in workDir (session.db plus whatever the
// client persists next to it).
type whatsmeowEngine struct {
	client  *whatsmeow.Client
	logger  *zap.Logger
	workDir string
	recent  *msgCache

	mu       sync.Mutex
	handlers Handlers
	closed   bool
}

// NewWhatsmeowFactory returns a Factory producing whatsmeow-backed engines.
func NewWhatsmeowFactory() Factory {
	return func(ctx context.Context, workDir string, logger *zap.Logger) (Engine, error) {
		return newWhatsmeowEngine(ctx, workDir, logger)
	}
}

func newWhatsmeowEngine(ctx context.Context, workDir string, logger *zap.Logger) (*whatsmeowEngine, error) {
	// Set device name shown on the phone's linked devices list.
	wastore.SetOSInfo("Wagate", [3]uint32{0, 1, 0})

	dbPath := filepath.Join(workDir, "session.db")
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, wrapStartupErr("create session store", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, wrapStartupErr("get device store", err)
	}

	e := &whatsmeowEngine{
		client:  whatsmeow.NewClient(deviceStore, nil),
		logger:  logger,
		workDir: workDir,
		recent:  newMsgCache(recentMessageCap),
	}
	e.client.AddEventHandler(e.handleEvent)
	return e, nil
}

// wrapStartupErr maps sqlite lock contention onto ErrWorkDirBusy so the
// lifecycle manager can tell a directory collision from a fatal failure.
func wrapStartupErr(op string, err error) error {
	if strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "resource temporarily unavailable") {
		return fmt.Errorf("%s: %w: %v", op, ErrWorkDirBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (e *whatsmeowEngine) SetHandlers(h Handlers) {
	e.mu.Lock()
	e.handlers = h
	e.mu.Unlock()
}

// Start connects to WhatsApp. Without stored credentials it opens the QR
// channel first and streams pairing codes to the QR handler until the flow
// resolves; with credentials it resumes the existing session directly.
func (e *whatsmeowEngine) Start(ctx context.Context) error {
	if e.LoggedIn() {
		e.logger.Info("resuming session from stored credentials", zap.String("work_dir", e.workDir))
		if err := e.client.Connect(); err != nil {
			return wrapStartupErr("connect", err)
		}
		return nil
	}

	// GetQRChannel must be called before Connect.
	qrChan, err := e.client.GetQRChannel(ctx)
	if err != nil {
		return wrapStartupErr("get QR channel", err)
	}
	if err := e.client.Connect(); err != nil {
		return wrapStartupErr("connect", err)
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				if h := e.qrHandler(); h != nil {
					h(item.Code)
				}
			case "success":
				e.logger.Info("QR pairing succeeded")
				return
			case "timeout":
				e.logger.Warn("QR pairing timed out")
				e.emitState(StateChange{Kind: StateDisconnected, Reason: "qr timeout"})
				return
			default:
				if item.Error != nil {
					e.logger.Warn("QR pairing failed", zap.Error(item.Error))
					e.emitState(StateChange{Kind: StateDisconnected, Reason: item.Error.Error()})
					return
				}
			}
		}
	}()

	return nil
}

// Close disconnects the client. The working directory is considered released
// only after the caller's drain interval has elapsed.
func (e *whatsmeowEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.client.Disconnect()
}

func (e *whatsmeowEngine) LoggedIn() bool {
	return e.client.Store.ID != nil
}

func (e *whatsmeowEngine) HostIdentity() (Identity, bool) {
	id := e.client.Store.ID
	if id == nil {
		return Identity{}, false
	}
	return Identity{ID: id.User, DisplayName: e.client.Store.PushName}, true
}

func (e *whatsmeowEngine) SendText(ctx context.Context, to, body string, opts SendOptions) (string, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}

	var msg *waE2E.Message
	if ci := buildContextInfo(to, opts); ci != nil {
		msg = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text:        proto.String(body),
				ContextInfo: ci,
			},
		}
	} else {
		msg = &waE2E.Message{Conversation: proto.String(body)}
	}

	resp, err := e.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

func (e *whatsmeowEngine) SendMedia(ctx context.Context, to string, media MediaUpload, opts SendOptions) (string, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}

	mediaType, err := uploadType(media.Kind)
	if err != nil {
		return "", err
	}
	up, err := e.client.Upload(ctx, media.Data, mediaType)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}

	ci := buildContextInfo(to, opts)
	length := uint64(len(media.Data))
	msg := &waE2E.Message{}
	switch media.Kind {
	case "image":
		msg.ImageMessage = &waE2E.ImageMessage{
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: proto.Uint64(length), Mimetype: proto.String(media.MimeType),
			Caption: proto.String(media.Caption), ContextInfo: ci,
		}
	case "video":
		msg.VideoMessage = &waE2E.VideoMessage{
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: proto.Uint64(length), Mimetype: proto.String(media.MimeType),
			Caption: proto.String(media.Caption), ContextInfo: ci,
		}
	case "audio":
		msg.AudioMessage = &waE2E.AudioMessage{
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: proto.Uint64(length), Mimetype: proto.String(media.MimeType),
			ContextInfo: ci,
		}
	case "document":
		msg.DocumentMessage = &waE2E.DocumentMessage{
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: proto.Uint64(length), Mimetype: proto.String(media.MimeType),
			FileName: proto.String(media.FileName), Caption: proto.String(media.Caption),
			ContextInfo: ci,
		}
	default:
		return "", fmt.Errorf("unsupported media kind %q", media.Kind)
	}

	resp, err := e.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	return resp.ID, nil
}

func (e *whatsmeowEngine) DownloadMedia(ctx context.Context, msgID string) ([]byte, string, error) {
	msg, ok := e.recent.get(msgID)
	if !ok {
		return nil, "", fmt.Errorf("message %s not in recent cache", msgID)
	}
	data, err := e.client.DownloadAny(ctx, msg)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	return data, mediaMimeType(msg), nil
}

func (e *whatsmeowEngine) MarkRead(ctx context.Context, keys []MessageKey) error {
	byChat := make(map[string][]MessageKey)
	for _, k := range keys {
		byChat[k.ChatJID] = append(byChat[k.ChatJID], k)
	}
	for chat, chatKeys := range byChat {
		chatJID, err := types.ParseJID(chat)
		if err != nil {
			return fmt.Errorf("parse chat JID: %w", err)
		}
		senderJID := chatJID
		ids := make([]types.MessageID, 0, len(chatKeys))
		for _, k := range chatKeys {
			if k.SenderJID != "" {
				if s, err := types.ParseJID(k.SenderJID); err == nil {
					senderJID = s
				}
			}
			ids = append(ids, k.MsgID)
		}
		if err := e.client.MarkRead(ctx, ids, time.Now(), chatJID, senderJID); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	return nil
}

func (e *whatsmeowEngine) AddressExists(ctx context.Context, addr string) (bool, error) {
	phone := strings.TrimSuffix(addr, "@"+types.DefaultUserServer)
	resp, err := e.client.IsOnWhatsApp(ctx, []string{phone})
	if err != nil {
		return false, fmt.Errorf("check address: %w", err)
	}
	if len(resp) == 0 {
		return false, nil
	}
	return resp[0].IsIn, nil
}

func (e *whatsmeowEngine) ProfileImageURL(ctx context.Context, addr string) (string, error) {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	info, err := e.client.GetProfilePictureInfo(ctx, jid, nil)
	if err != nil {
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (e *whatsmeowEngine) Logout(ctx context.Context) error {
	return e.client.Logout(ctx)
}

func (e *whatsmeowEngine) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		e.recent.put(evt.Info.ID, evt.Message)
		if h := e.messageHandler(); h != nil {
			h(toRawMessage(evt))
		}
	case *events.Connected:
		e.logger.Info("WhatsApp connected")
		e.emitState(StateChange{Kind: StateConnected})
	case *events.Disconnected:
		e.logger.Warn("WhatsApp disconnected")
		e.emitState(StateChange{Kind: StateDisconnected, Reason: "connection lost"})
	case *events.LoggedOut:
		e.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		e.emitState(StateChange{Kind: StateLoggedOut, Reason: evt.Reason.String()})
	}
}

func (e *whatsmeowEngine) emitState(sc StateChange) {
	if h := e.stateHandler(); h != nil {
		h(sc)
	}
}

func (e *whatsmeowEngine) qrHandler() func(string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers.QR
}

func (e *whatsmeowEngine) stateHandler() func(StateChange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers.State
}

func (e *whatsmeowEngine) messageHandler() func(RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers.Message
}

func buildContextInfo(to string, opts SendOptions) *waE2E.ContextInfo {
	if opts.QuotedID == "" && len(opts.Mentions) == 0 {
		return nil
	}
	ci := &waE2E.ContextInfo{}
	if opts.QuotedID != "" {
		ci.StanzaID = proto.String(opts.QuotedID)
		ci.Participant = proto.String(to)
		ci.QuotedMessage = &waE2E.Message{Conversation: proto.String("")}
	}
	if len(opts.Mentions) > 0 {
		ci.MentionedJID = opts.Mentions
	}
	return ci
}

func uploadType(kind string) (whatsmeow.MediaType, error) {
	switch kind {
	case "image":
		return whatsmeow.MediaImage, nil
	case "video":
		return whatsmeow.MediaVideo, nil
	case "audio":
		return whatsmeow.MediaAudio, nil
	case "document":
		return whatsmeow.MediaDocument, nil
	default:
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}
}

func mediaMimeType(msg *waE2E.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetMimetype()
	default:
		return ""
	}
}
