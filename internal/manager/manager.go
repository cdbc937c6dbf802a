// Package manager owns the session lifecycle: it drives the automation
// engine through login/resume, persists credential snapshots across process
// boundaries, reacts to disconnects, and republishes lifecycle and message
// events on the bus.
package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/wagate-io/wagate/internal/archive"
	"github.com/wagate-io/wagate/internal/bus"
	"github.com/wagate-io/wagate/internal/engine"
	"github.com/wagate-io/wagate/internal/media"
	"github.com/wagate-io/wagate/internal/message"
	"github.com/wagate-io/wagate/internal/reconnect"
	"github.com/wagate-io/wagate/internal/session"
	"github.com/wagate-io/wagate/internal/status"
	"github.com/wagate-io/wagate/internal/store"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by operations that need a live engine handle.
// The caller recovers by calling Connect first.
var ErrNotConnected = errors.New("session not connected")

// Options are the resolved lifecycle tunables.
type Options struct {
	// QRWindow bounds how long Connect waits for a QR code or a completed
	// login before returning a "keep polling" result.
	QRWindow time.Duration
	// Drain is the settle interval after closing an engine instance before
	// its working directory is considered released.
	Drain time.Duration
	// Policy decides reconnect retries after an unexpected disconnect.
	Policy reconnect.Policy
}

// Params collects the collaborators of a Manager.
type Params struct {
	Identity string
	Factory  engine.Factory
	DB       *store.DB
	Bus      *bus.Bus
	Machine  *status.Machine
	Fetcher  *media.Fetcher
	Logger   *zap.Logger
	Options  Options
	// CredentialRoot holds the engine working directories for this identity.
	// Empty means the default session layout.
	CredentialRoot string
}

// Manager drives the lifecycle of exactly one session identity. All state
// transitions for the identity funnel through its state machine; distinct
// identities run fully independent managers.
type Manager struct {
	identity string
	factory  engine.Factory
	db       *store.DB
	bus      *bus.Bus
	machine  *status.Machine
	fetcher  *media.Fetcher
	logger   *zap.Logger
	opts     Options
	credRoot string

	mu         sync.Mutex
	connecting bool
	eng        engine.Engine
	workDir    string
	attempts   int
	lastQR     string
	qrSeen     chan struct{}
	readySeen  chan struct{}
}

// New creates a manager for one identity.
func New(p Params) *Manager {
	credRoot := p.CredentialRoot
	if credRoot == "" {
		credRoot = session.WorkBase(p.Identity)
	}
	return &Manager{
		identity: p.Identity,
		factory:  p.Factory,
		db:       p.DB,
		bus:      p.Bus,
		machine:  p.Machine,
		fetcher:  p.Fetcher,
		logger:   p.Logger,
		opts:     p.Options,
		credRoot: credRoot,
	}
}

// ConnectResult is what Connect hands back to the caller. Waiting means the
// engine is still working through its login flow; the caller should poll
// Status and the persisted QR instead of blocking.
type ConnectResult struct {
	State   status.State
	QRCode  string
	Waiting bool
}

// StatusInfo is the polled view of a session.
type StatusInfo struct {
	Connected bool
	State     status.State
	UserID    string
}

// Connect starts (or resumes) the session. Calling it while a connect is in
// flight, or while the session is already live, is an idempotent no-op that
// returns the current state instead of starting a duplicate engine instance.
func (m *Manager) Connect(ctx context.Context) (ConnectResult, error) {
	m.mu.Lock()
	st := m.machine.Current()
	if m.connecting || st != status.Disconnected {
		res := ConnectResult{State: st, QRCode: m.lastQR, Waiting: m.connecting && m.lastQR == ""}
		m.mu.Unlock()
		return res, nil
	}
	m.connecting = true
	m.qrSeen = make(chan struct{})
	m.readySeen = make(chan struct{})
	m.lastQR = ""
	old := m.eng
	m.eng = nil
	qrSeen, readySeen := m.qrSeen, m.readySeen
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	if err := m.machine.Transition(status.Connecting); err != nil {
		return ConnectResult{State: m.machine.Current()}, err
	}

	if old != nil {
		// At most one live engine instance per identity: fully stop and
		// drain the previous one before a new one may claim the directory.
		old.Close()
		time.Sleep(m.opts.Drain)
	}

	workDir := filepath.Join(m.credRoot, "default")
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return m.failConnect(fmt.Errorf("create working directory: %w", err))
	}

	rec, err := m.db.LoadSession(m.identity)
	if err != nil {
		m.logger.Warn("loading persisted session failed", zap.Error(err))
		rec = nil
	}
	if rec != nil && len(rec.Archive) > 0 {
		if archive.Restore(rec.Archive, workDir) {
			m.logger.Info("session archive restored", zap.String("work_dir", workDir))
		} else {
			m.logger.Warn("persisted session archive unusable, starting fresh login")
		}
	}

	if err := m.startEngine(ctx, workDir, rec); err != nil {
		return m.failConnect(err)
	}

	timer := time.NewTimer(m.opts.QRWindow)
	defer timer.Stop()
	select {
	case <-readySeen:
		return ConnectResult{State: m.machine.Current()}, nil
	case <-qrSeen:
		m.mu.Lock()
		qr := m.lastQR
		m.mu.Unlock()
		return ConnectResult{State: m.machine.Current(), QRCode: qr}, nil
	case <-timer.C:
		// Not an error: the caller re-polls for state and QR.
		return ConnectResult{State: m.machine.Current(), Waiting: true}, nil
	case <-ctx.Done():
		return ConnectResult{State: m.machine.Current(), Waiting: true}, ctx.Err()
	}
}

func (m *Manager) failConnect(err error) (ConnectResult, error) {
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.publish(bus.KindSessionError, bus.ErrorPayload{Message: err.Error()})
	return ConnectResult{State: status.Disconnected}, err
}

// startEngine creates and starts an engine in workDir. If startup fails
// because a prior instance is still bound to the directory it retries
// exactly once with a freshly named directory; a second failure surfaces.
func (m *Manager) startEngine(ctx context.Context, workDir string, rec *store.SessionRecord) error {
	err := m.newEngine(ctx, workDir)
	if err == nil {
		return nil
	}
	if !errors.Is(err, engine.ErrWorkDirBusy) {
		return err
	}

	retryDir := filepath.Join(m.credRoot, "retry-"+uuid.NewString())
	m.logger.Warn("working directory busy, retrying once with fresh directory",
		zap.String("busy_dir", workDir), zap.String("retry_dir", retryDir))
	if err := os.MkdirAll(retryDir, 0700); err != nil {
		return fmt.Errorf("create retry directory: %w", err)
	}
	if rec != nil && len(rec.Archive) > 0 {
		_ = archive.Restore(rec.Archive, retryDir)
	}
	return m.newEngine(ctx, retryDir)
}

func (m *Manager) newEngine(ctx context.Context, dir string) error {
	eng, err := m.factory(ctx, dir, m.logger)
	if err != nil {
		return err
	}
	eng.SetHandlers(engine.Handlers{
		QR:      m.handleQR,
		State:   m.handleState,
		Message: m.handleMessage,
	})

	// Publish the handle before Start: engine callbacks may fire as soon as
	// the connection comes up.
	m.mu.Lock()
	m.eng = eng
	m.workDir = dir
	m.mu.Unlock()

	if err := eng.Start(ctx); err != nil {
		m.mu.Lock()
		if m.eng == eng {
			m.eng = nil
		}
		m.mu.Unlock()
		eng.Close()
		return err
	}
	return nil
}

// Disconnect stops the engine and transitions to Disconnected. The persisted
// archive stays in place so the session remains resumable.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	eng := m.eng
	m.eng = nil
	m.mu.Unlock()

	if eng != nil {
		eng.Close()
		time.Sleep(m.opts.Drain)
	}
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.publish(bus.KindSessionDisconnected, nil)
	m.persistAsync(store.SaveParams{SessionName: m.identity, Status: string(status.Disconnected)})
}

// Logout disconnects, then irreversibly deletes the on-disk credential
// directories and the persisted record. A later Connect starts a fresh
// QR login flow.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	eng := m.eng
	m.eng = nil
	m.mu.Unlock()

	if eng != nil {
		if err := eng.Logout(ctx); err != nil {
			m.logger.Warn("engine logout failed", zap.Error(err))
		}
		eng.Close()
		time.Sleep(m.opts.Drain)
	}
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}

	if err := os.RemoveAll(m.credRoot); err != nil {
		m.logger.Warn("removing credential directories failed", zap.Error(err))
	}
	if err := m.db.ClearSession(m.identity); err != nil {
		m.logger.Warn("clearing persisted session failed", zap.Error(err))
	}
	m.publish(bus.KindSessionLoggedOut, nil)
	return nil
}

// Status returns the polled view of the session.
func (m *Manager) Status() StatusInfo {
	st := m.machine.Current()
	info := StatusInfo{Connected: st == status.Connected, State: st}
	m.mu.Lock()
	eng := m.eng
	m.mu.Unlock()
	if eng != nil {
		if id, ok := eng.HostIdentity(); ok {
			info.UserID = id.ID
		}
	}
	return info
}

func (m *Manager) handleQR(code string) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		m.logger.Warn("rendering QR code failed", zap.Error(err))
		return
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	m.mu.Lock()
	m.lastQR = dataURI
	qrSeen := m.qrSeen
	m.mu.Unlock()
	signal(qrSeen)

	m.publish(bus.KindSessionQR, bus.QRPayload{DataURI: dataURI})
	m.persistAsync(store.SaveParams{
		SessionName: m.identity,
		QRCode:      dataURI,
		Status:      string(m.machine.Current()),
	})
}

func (m *Manager) handleState(sc engine.StateChange) {
	switch sc.Kind {
	case engine.StateConnected:
		m.onEngineConnected()
	case engine.StateDisconnected:
		m.onEngineDisconnected(sc)
	case engine.StateLoggedOut:
		m.logger.Warn("engine reports remote logout", zap.String("reason", sc.Reason))
		go func() { _ = m.Logout(context.Background()) }()
	}
}

func (m *Manager) onEngineConnected() {
	cur := m.machine.Current()
	if cur != status.Connecting && cur != status.Reconnecting {
		// Duplicate/noisy signal; the state machine already settled.
		return
	}
	if err := m.machine.Transition(status.Connected); err != nil {
		return
	}

	m.mu.Lock()
	m.attempts = 0
	m.lastQR = ""
	ready := m.readySeen
	eng := m.eng
	m.mu.Unlock()
	signal(ready)

	var id engine.Identity
	if eng != nil {
		id, _ = eng.HostIdentity()
	}
	m.publish(bus.KindSessionReady, bus.ReadyPayload{UserID: id.ID, DisplayName: id.DisplayName})
	go m.snapshotAndPersist(id.ID)
}

func (m *Manager) onEngineDisconnected(sc engine.StateChange) {
	// The engine's status stream is not monotonic during the login
	// handshake: only a disconnect observed while Connected is real.
	if m.machine.Current() != status.Connected {
		m.logger.Info("ignoring disconnect signal while not connected", zap.String("reason", sc.Reason))
		return
	}
	if err := m.machine.Transition(status.Reconnecting); err != nil {
		return
	}
	m.publish(bus.KindSessionDisconnected, nil)
	m.persistAsync(store.SaveParams{SessionName: m.identity, Status: string(status.Reconnecting)})
	go m.reconnectLoop()
}

// reconnectLoop retries engine startup with the fixed policy delay until the
// session recovers, the caller intervenes, or attempts are exhausted. It
// never loops forever: past the cap the session stays Disconnected until an
// explicit Connect.
func (m *Manager) reconnectLoop() {
	for {
		m.mu.Lock()
		attempts := m.attempts
		m.mu.Unlock()

		d := m.opts.Policy.Decide(true, attempts)
		if !d.Retry {
			m.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", attempts))
			if m.machine.Current() == status.Reconnecting {
				_ = m.machine.Transition(status.Disconnected)
			}
			m.stopDanglingEngine()
			m.publish(bus.KindSessionError, bus.ErrorPayload{Message: "reconnect attempts exhausted"})
			m.persistAsync(store.SaveParams{SessionName: m.identity, Status: string(status.Disconnected)})
			return
		}
		time.Sleep(d.Delay)
		if m.machine.Current() != status.Reconnecting {
			// Explicit disconnect/logout, or already recovered.
			m.stopDanglingEngine()
			return
		}

		m.mu.Lock()
		m.attempts++
		old := m.eng
		m.eng = nil
		dir := m.workDir
		m.mu.Unlock()

		if old != nil {
			old.Close()
			time.Sleep(m.opts.Drain)
		}
		if err := m.newEngine(context.Background(), dir); err != nil {
			m.logger.Warn("reconnect attempt failed", zap.Error(err))
			continue
		}

		// Wait for the engine to report Connected before deciding whether
		// another attempt is needed. onEngineConnected resets the counter.
		deadline := time.Now().Add(m.opts.QRWindow)
		for time.Now().Before(deadline) {
			if m.machine.Current() != status.Reconnecting {
				m.stopDanglingEngine()
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
		m.logger.Warn("reconnect attempt did not reach connected state")
	}
}

// stopDanglingEngine closes and clears the engine handle unless the session
// is live. A reconnect attempt may start an engine that never reaches
// Connected; it must not keep running behind a Disconnected session.
func (m *Manager) stopDanglingEngine() {
	if m.machine.Current() == status.Connected {
		return
	}
	m.mu.Lock()
	eng := m.eng
	m.eng = nil
	m.mu.Unlock()

	if eng != nil {
		eng.Close()
		time.Sleep(m.opts.Drain)
	}
}

func (m *Manager) handleMessage(raw engine.RawMessage) {
	msg := message.Normalize(raw)
	if msg == nil {
		return
	}

	if msg.Kind != message.KindText && m.fetcher != nil {
		m.mu.Lock()
		eng := m.eng
		m.mu.Unlock()
		if eng != nil {
			// A message without its media attachment is still valid; Fetch
			// returns "" on failure and the message ships without MediaRef.
			if ref := m.fetcher.Fetch(context.Background(), eng, raw); ref != "" {
				msg.MediaRef = ref
			}
		}
	}

	m.publish(bus.KindMessageReceived, msg)
	go func() {
		if err := m.db.Touch(m.identity); err != nil {
			m.logger.Warn("refreshing session activity failed", zap.Error(err))
		}
	}()
}

// snapshotAndPersist archives the working directory and upserts the record.
// Only called on designated transition points, never mid-startup, so a
// partial credential directory is never snapshotted.
func (m *Manager) snapshotAndPersist(userID string) {
	m.mu.Lock()
	dir := m.workDir
	m.mu.Unlock()

	data, err := archive.Snapshot(dir)
	if err != nil {
		if errors.Is(err, archive.ErrEmptyDirectory) {
			m.logger.Warn("skipping archive snapshot of empty directory", zap.String("dir", dir))
		} else {
			m.logger.Warn("archive snapshot failed", zap.Error(err))
		}
		data = nil
	}
	m.persist(store.SaveParams{
		SessionName:     m.identity,
		Archive:         data,
		Status:          string(status.Connected),
		ConnectedUserID: userID,
	})
}

// persist writes the record. Persistence failures are logged, never fatal to
// the live session: it keeps operating in-memory until the next attempt.
func (m *Manager) persist(p store.SaveParams) {
	if err := m.db.SaveSession(p); err != nil {
		m.logger.Warn("session persistence failed", zap.Error(err))
	}
}

func (m *Manager) persistAsync(p store.SaveParams) {
	go m.persist(p)
}

func (m *Manager) publish(kind bus.Kind, payload any) {
	m.bus.Publish(bus.Event{
		Kind:      kind,
		Identity:  m.identity,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// signal closes ch once, tolerating repeat calls from the same goroutine.
func signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}
