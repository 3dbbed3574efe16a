// Package mtclient is the top-level facade wiring dcmanager, rpc, updates,
// entity, and session behind one Client (the mtglib.Proxy-equivalent "God
// object", per mtglib/proxy.go): construction order, lifecycle, and the
// public Invoke/Updates/Migrate surface a caller actually needs.
package mtclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/mtprotogo/core/dcmanager"
	"github.com/mtprotogo/core/entity"
	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtproto"
	"github.com/mtprotogo/core/rpc"
	"github.com/mtprotogo/core/schema"
	"github.com/mtprotogo/core/session"
	"github.com/mtprotogo/core/updates"
)

// UpdateEnvelope pairs a decoded Update with the ChannelKey it belongs to
// (§4.6); see Config.DecodeUpdates.
type UpdateEnvelope struct {
	Key    updates.ChannelKey
	Update updates.Update
}

// UpdateDecoder turns one raw updates-shaped payload into zero or more
// envelopes ready for the pipeline.
type UpdateDecoder func(dcID int, payload []byte) ([]UpdateEnvelope, error)

// AppliedUpdate is one already pts-ordered update delivered through
// Client.Updates().
type AppliedUpdate struct {
	AccountID int64
	ChannelID int64
	Payload   []byte
}

// Client is the account-scoped entry point: one Client per logged-in
// account (§3 "never shared across accounts"), owning every DC connection
// it needs and the update/entity state that goes with it.
type Client struct {
	cfg    Config
	logger mtclog.Logger

	mgr      *dcmanager.Manager
	disp     *rpc.Dispatcher
	pipeline *updates.Pipeline
	dispatch *updates.Dispatch
	cache    *entity.Cache
	walker   *entity.Walker
	stream   events.EventStream
	store    session.Store

	updatesCh chan AppliedUpdate

	closeOnce sync.Once
}

// New builds a Client from cfg, wiring every package's pieces together but
// not opening any network connection yet -- connections are established
// lazily by Invoke's first call, mirroring dcmanager.EnsureSender's
// on-demand connect.
func New(cfg Config) (*Client, error) {
	if err := cfg.valid(); err != nil {
		return nil, err
	}

	logger := cfg.Logger.Named("mtclient")

	stream := events.NewEventStream(cfg.ObserverFactories)

	cache := entity.New()
	walker := entity.NewWalker(cache, cfg.Extractor)

	dedup := updates.NewDedup(0, 0)

	c := &Client{
		cfg:       cfg,
		logger:    logger,
		cache:     cache,
		walker:    walker,
		stream:    stream,
		store:     cfg.Store,
		updatesCh: make(chan AppliedUpdate, 256),
	}

	dispatch, err := updates.NewDispatch(cfg.getUpdateConcurrency(), c.deliverUpdate, logger.Named("updates"))
	if err != nil {
		return nil, fmt.Errorf("mtclient: cannot start updates dispatch: %w", err)
	}

	c.dispatch = dispatch
	c.pipeline = updates.NewPipeline(cfg.GetDifference, dedup, dispatch, logger.Named("updates"))
	c.pipeline.SetEvents(stream)

	disp := rpc.NewDispatcher(nil, logger.Named("rpc"), cfg.getLayer(), c.onRawUpdates)
	disp.SetEvents(stream)
	c.disp = disp

	mgr := dcmanager.New(cfg.HomeDC, dcmanager.Options{
		Directory:      cfg.Directory,
		Connector:      cfg.Connector,
		Mode:           cfg.getMode(),
		PublicKeys:     cfg.PublicKeys,
		Store:          authKeyAdapter{store: cfg.Store},
		HandlerFactory: disp.HandlerFactory(),
		Logger:         logger.Named("dcmanager"),
		Events:         stream,
		OnDisconnect:   disp.OnDisconnect(),
	})
	c.mgr = mgr

	disp.SetManager(mgr)

	return c, nil
}

// deliverUpdate is the updates.Subscriber the Dispatch worker pool calls
// once an update is in order for its key; it pushes into the public
// Updates() channel, dropping (with a log line, never blocking the
// dispatch worker) if the caller is not draining it fast enough.
func (c *Client) deliverUpdate(key updates.ChannelKey, u updates.Update) {
	select {
	case c.updatesCh <- AppliedUpdate{AccountID: key.AccountID, ChannelID: key.ChannelID, Payload: u.Payload}:
	default:
		c.logger.Warning("mtclient: updates channel full, dropping applied update")
	}
}

// onRawUpdates is the rpc.UpdatesHandler bridging a DC's raw updates-shaped
// payload into the sequencing pipeline via the caller-supplied decoder.
func (c *Client) onRawUpdates(dcID int, payload []byte) {
	if c.cfg.DecodeUpdates == nil {
		return
	}

	envelopes, err := c.cfg.DecodeUpdates(dcID, payload)
	if err != nil {
		c.logger.WarningError("mtclient: cannot decode updates payload", err)
		return
	}

	for _, env := range envelopes {
		c.pipeline.Apply(context.Background(), env.Key, env.Update)
	}
}

// Updates returns the channel applied updates are delivered on, already in
// pts order per account/channel (§4.6).
func (c *Client) Updates() <-chan AppliedUpdate {
	return c.updatesCh
}

// Entities returns the account's EntityCache (§3).
func (c *Client) Entities() *entity.Cache {
	return c.cache
}

// ObserveEntities walks obj for embedded peer descriptions and upserts them
// into the EntityCache (§4.6 "EntityCache integration"); callers invoke
// this on every RPC reply and update payload they decode.
func (c *Client) ObserveEntities(obj schema.Object) {
	c.walker.Observe(obj)
}

// SeedUpdateState installs the known pts/qts/date/seq baseline for key,
// typically loaded from the session store at startup (§4.7).
func (c *Client) SeedUpdateState(key updates.ChannelKey, state updates.State) {
	c.pipeline.SeedState(key, state)
}

// Invoke submits body as one RPC against the account's home DC (§4.6).
func (c *Client) Invoke(ctx context.Context, kind string, body []byte) rpc.Result {
	return c.InvokeOn(ctx, c.mgr.HomeDC(), kind, body)
}

// InvokeOn submits body as one RPC against a specific DC, e.g. a CDN or
// media DC that is not the account's home (§4.5).
func (c *Client) InvokeOn(ctx context.Context, dcID int, kind string, body []byte) rpc.Result {
	result := c.disp.Submit(ctx, dcID, kind, body)

	if rpc.IsAuthKeyDuplicated(result.Err) {
		c.stream.Send(ctx, events.NewEventRPCError(dcID, 406, "AUTH_KEY_DUPLICATED"))

		if c.cfg.RekeyOnDuplicateAuthKey {
			if clearErr := c.mgr.ClearAndDisconnect(dcID); clearErr != nil {
				c.logger.WarningError(fmt.Sprintf("mtclient: cannot clear duplicated auth key for dc %d", dcID), clearErr)
			}
		}
	}

	return result
}

// Migrate switches the client's home DC following a *_MIGRATE_n RPC error
// (§4.5); transfer, if non-nil, carries login state across via
// exportAuthorization/importAuthorization.
func (c *Client) Migrate(ctx context.Context, oldDC, newDC int, reason dcmanager.MigrationReason, wasAuthorized bool, transfer dcmanager.AuthTransfer) (*mtproto.Sender, error) {
	return c.mgr.Migrate(ctx, oldDC, newDC, reason, wasAuthorized, transfer)
}

// BeginTakeout marks dcID as running under takeoutID: every subsequent RPC
// against it is wrapped in invokeWithTakeout until EndTakeout (§1).
func (c *Client) BeginTakeout(dcID int, takeoutID int64) {
	c.mgr.BeginTakeout(dcID, takeoutID)
}

// EndTakeout clears dcID's active takeout session.
func (c *Client) EndTakeout(dcID int) {
	c.mgr.EndTakeout(dcID)
}

// Cancel marks a pending RPC with the given id as cancelled (§5).
func (c *Client) Cancel(dcID int, id uint64) {
	c.disp.Cancel(dcID, id)
}

// Logout invokes logoutFn against every DC the client currently has a
// connection entry for, then clears those DCs' stored keys and disconnects
// (§4.5). Keys stored for DCs with no connection entry are left in place.
func (c *Client) Logout(ctx context.Context, logoutFn func(ctx context.Context, dcID int, sender *mtproto.Sender) error) error {
	return c.mgr.Logout(ctx, logoutFn)
}

// Close tears down every DC connection and releases the updates worker
// pool and event stream. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mgr.DisconnectAll()
		c.dispatch.Stop()
		c.stream.Shutdown()
		close(c.updatesCh)
	})

	return nil
}
