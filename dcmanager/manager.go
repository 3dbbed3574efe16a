package dcmanager

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mtprotogo/core/authkey"
	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtproto"
	"github.com/mtprotogo/core/transport"
)

// AuthKeyStore is the subset of §4.7's session store the Manager needs: an
// AuthorizationKey is per DC, so it is loaded/saved/cleared by dc id.
// Concrete session.Store implementations satisfy this interface
// structurally without the package importing session directly.
type AuthKeyStore interface {
	LoadAuthKey(dcID int) (key []byte, salt uint64, found bool, err error)
	SaveAuthKey(dcID int, key []byte, salt uint64) error
	ClearAuthKey(dcID int) error
}

// HandlerFactory builds the mtproto.Handler a newly connected Sender for
// dcID should dispatch system messages to, typically one that bridges into
// the rpc package's pending-request table and the updates pipeline.
type HandlerFactory func(dcID int) mtproto.Handler

// PingResponder is implemented by Handlers that need the Pinger once the
// Sender's keepalive loop starts, so their OnPong can clear the
// corresponding outstanding ping id. The Pinger is not available at
// HandlerFactory time (it is created after the Sender), so the binding
// happens as a second step once the connection is fully up.
type PingResponder interface {
	BindPinger(p *mtproto.Pinger)
}

// Options configures a Manager.
type Options struct {
	Directory      DCDirectory
	Connector      transport.Connector
	Mode           transport.Mode
	PublicKeys     authkey.KnownPublicKeys
	Store          AuthKeyStore
	HandlerFactory HandlerFactory
	Logger         mtclog.Logger

	// Events reports AuthKey creation and migration lifecycle moments
	// (§1's events surface). The zero value is a safe no-op.
	Events events.EventStream

	// OnDisconnect is invoked from the receive loop's own goroutine once
	// a DC's transport has failed and been torn down (§4.6 retry table,
	// "Transport error or disconnect: Reconnect; resend all non-terminal
	// pending requests with fresh msg_ids"); the rpc package wires this
	// to its pending-request requeue logic. May be nil.
	OnDisconnect func(dcID int, err error)
}

type dcState struct {
	mu      sync.Mutex
	conn    transport.Conn
	sender  *mtproto.Sender
	session *mtproto.Session
	pinger  *mtproto.Pinger
	acks    *mtproto.AckCoalescer
	authKey []byte
}

// Manager owns the primary sender on the user's home DC plus any auxiliary
// senders spawned on demand for non-home-DC files or CDN downloads (§4.5).
type Manager struct {
	opts Options

	mu     sync.RWMutex
	dcs    map[int]*dcState
	homeDC int

	// dialGroup collapses concurrent EnsureSender calls for the same DC
	// (e.g. several RPCs submitted in the same tick before any sender
	// exists) into a single AuthKey exchange and connection attempt,
	// grounded on the teacher's habit of guarding shared connection state
	// with a single mutex, generalized here to a per-key in-flight merge.
	dialGroup singleflight.Group

	takeoutMu sync.RWMutex
	takeout   map[int]int64
}

// New creates a Manager whose primary DC is homeDC.
func New(homeDC int, opts Options) *Manager {
	return &Manager{
		opts:    opts,
		dcs:     make(map[int]*dcState),
		homeDC:  homeDC,
		takeout: make(map[int]int64),
	}
}

// BeginTakeout marks dcID as having takeoutID active, so every RPC
// rpc.Dispatcher submits against it is wrapped in invokeWithTakeout until
// EndTakeout is called (§1, session manager takeout contexts).
func (m *Manager) BeginTakeout(dcID int, takeoutID int64) {
	m.takeoutMu.Lock()
	defer m.takeoutMu.Unlock()

	m.takeout[dcID] = takeoutID
}

// EndTakeout clears dcID's active takeout id.
func (m *Manager) EndTakeout(dcID int) {
	m.takeoutMu.Lock()
	defer m.takeoutMu.Unlock()

	delete(m.takeout, dcID)
}

// ActiveTakeout reports the takeout id currently wrapping dcID's RPCs, if
// any.
func (m *Manager) ActiveTakeout(dcID int) (int64, bool) {
	m.takeoutMu.RLock()
	defer m.takeoutMu.RUnlock()

	id, ok := m.takeout[dcID]

	return id, ok
}

// HomeDC returns the user's home DC id.
func (m *Manager) HomeDC() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.homeDC
}

// SetHomeDC updates the home DC, e.g. after a USER_MIGRATE_X (§4.5).
func (m *Manager) SetHomeDC(dcID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.homeDC = dcID
}

// EnsureSender returns the Sender for dcID, connecting and running the
// AuthKey exchange (§4.3) if no prior connection or stored key exists.
func (m *Manager) EnsureSender(ctx context.Context, dcID int) (*mtproto.Sender, error) {
	m.mu.RLock()
	st, ok := m.dcs[dcID]
	m.mu.RUnlock()

	if ok {
		st.mu.Lock()
		sender := st.sender
		st.mu.Unlock()

		if sender != nil {
			return sender, nil
		}
	}

	sender, err, _ := m.dialGroup.Do(strconv.Itoa(dcID), func() (interface{}, error) {
		return m.connect(ctx, dcID)
	})
	if err != nil {
		return nil, err
	}

	return sender.(*mtproto.Sender), nil
}

func (m *Manager) connect(ctx context.Context, dcID int) (*mtproto.Sender, error) {
	addrs := m.opts.Directory.Addresses(dcID)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("dcmanager: no known addresses for dc %d", dcID)
	}

	var lastErr error

	for _, addr := range addrs {
		conn, err := transport.Connect(ctx, m.opts.Connector, addr, m.opts.Mode)
		if err != nil {
			lastErr = err
			continue
		}

		sender, session, authKey, handler, err := m.handshake(ctx, dcID, conn)
		if err != nil {
			conn.Close()

			lastErr = err

			continue
		}

		m.store(dcID, conn, sender, session, authKey, handler)
		m.opts.Events.Send(ctx, events.NewEventReconnected(dcID))

		return sender, nil
	}

	return nil, fmt.Errorf("dcmanager: cannot connect to dc %d: %w", dcID, lastErr)
}

func (m *Manager) handshake(ctx context.Context, dcID int, conn transport.Conn) (*mtproto.Sender, *mtproto.Session, []byte, mtproto.Handler, error) {
	key, salt, found, err := m.opts.Store.LoadAuthKey(dcID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("dcmanager: cannot load auth key for dc %d: %w", dcID, err)
	}

	if !found {
		result, err := authkey.Run(ctx, conn, m.opts.PublicKeys, m.opts.Logger)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("dcmanager: authkey exchange with dc %d failed: %w", dcID, err)
		}

		key = result.Key
		salt = result.Salt

		if err := m.opts.Store.SaveAuthKey(dcID, key, salt); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("dcmanager: cannot persist auth key for dc %d: %w", dcID, err)
		}

		m.opts.Events.Send(ctx, events.NewEventAuthKeyCreated(dcID, result.Fingerprint))
	}

	session, err := mtproto.NewSession(salt)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	handler := m.opts.HandlerFactory(dcID)
	sender := mtproto.New(conn, key, session, handler, m.opts.Logger)

	return sender, session, key, handler, nil
}

func (m *Manager) store(dcID int, conn transport.Conn, sender *mtproto.Sender, session *mtproto.Session, authKey []byte, handler mtproto.Handler) {
	pinger := mtproto.NewPinger(sender, m.opts.Logger, func() {
		m.Disconnect(dcID)
	})

	if responder, ok := handler.(PingResponder); ok {
		responder.BindPinger(pinger)
	}

	acks := mtproto.NewAckCoalescer(sender, m.opts.Logger)

	pinger.Start()
	acks.Start()

	st := &dcState{
		conn:    conn,
		sender:  sender,
		session: session,
		pinger:  pinger,
		acks:    acks,
		authKey: authKey,
	}

	m.mu.Lock()
	m.dcs[dcID] = st
	m.mu.Unlock()

	go m.recvLoop(dcID, sender)
}

// recvLoop runs Sender.ReceiveOnce in a dedicated goroutine until the
// transport fails, then tears the DC down and reports the failure so the
// rpc package can requeue whatever was still in flight (§4.6 retry table,
// "Transport error or disconnect"). Grounded on mtglib/proxy.go's
// per-connection read-loop goroutine.
func (m *Manager) recvLoop(dcID int, sender *mtproto.Sender) {
	for {
		if err := sender.ReceiveOnce(); err != nil {
			m.Disconnect(dcID)

			if m.opts.OnDisconnect != nil {
				m.opts.OnDisconnect(dcID, err)
			}

			return
		}
	}
}

// Disconnect tears down the connection for dcID, if any, so the next
// EnsureSender call reconnects (§4.5 "connect()/disconnect()").
func (m *Manager) Disconnect(dcID int) {
	m.mu.Lock()
	st, ok := m.dcs[dcID]
	delete(m.dcs, dcID)
	m.mu.Unlock()

	if !ok {
		return
	}

	st.pinger.Stop()
	st.acks.Stop()
	st.conn.Close()
}

// ClearAndDisconnect clears dcID's stored AuthorizationKey and disconnects
// it, so the next EnsureSender call renegotiates a fresh key (§9's
// AUTH_KEY_DUPLICATED rekey switch).
func (m *Manager) ClearAndDisconnect(dcID int) error {
	err := m.opts.Store.ClearAuthKey(dcID)
	m.Disconnect(dcID)

	return err
}

// DisconnectAll tears down every active DC connection.
func (m *Manager) DisconnectAll() {
	m.mu.RLock()
	ids := make([]int, 0, len(m.dcs))

	for id := range m.dcs {
		ids = append(ids, id)
	}

	m.mu.RUnlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}

// KnownDCs returns the ids of every DC with an active sender.
func (m *Manager) KnownDCs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int, 0, len(m.dcs))
	for id := range m.dcs {
		ids = append(ids, id)
	}

	return ids
}

// Logout invokes logoutFn against every DC this Manager currently has a
// connection entry for, then clears that DC's key from the store and
// disconnects it (§4.5). A DC whose key is only in the store, with no
// connection entry here, is neither logged out nor cleared.
func (m *Manager) Logout(ctx context.Context, logoutFn func(ctx context.Context, dcID int, sender *mtproto.Sender) error) error {
	m.mu.RLock()
	snapshot := make(map[int]*mtproto.Sender, len(m.dcs))

	for id, st := range m.dcs {
		st.mu.Lock()
		snapshot[id] = st.sender
		st.mu.Unlock()
	}

	m.mu.RUnlock()

	var firstErr error

	for dcID, sender := range snapshot {
		if logoutFn != nil && sender != nil {
			if err := logoutFn(ctx, dcID, sender); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		if err := m.opts.Store.ClearAuthKey(dcID); err != nil && firstErr == nil {
			firstErr = err
		}

		m.Disconnect(dcID)
	}

	return firstErr
}
