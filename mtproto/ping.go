package mtproto

import (
	"sync"
	"time"

	"github.com/mtprotogo/core/crypto"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/mtwire"
)

const (
	pingInterval          = 60 * time.Second
	pingDisconnectTimeout = 75 * time.Second
	ctorPingDelayDiscon   = 0xf3427b8c
)

// Pinger drives the ≈60s keepalive loop (§4.4 "Ping loop"): the server may
// silently drop an idle transport, so sending an explicit
// ping_delay_disconnect is the only reliable way to detect that before the
// next real RPC fails.
type Pinger struct {
	sender *Sender
	logger mtclog.Logger

	mu          sync.Mutex
	outstanding map[int64]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup

	onDisconnect func()
}

// NewPinger creates a Pinger bound to sender. onDisconnect is invoked if a
// ping goes unanswered past pingDisconnectTimeout, signalling the owning
// DC manager that the transport should be torn down and reconnected.
func NewPinger(sender *Sender, logger mtclog.Logger, onDisconnect func()) *Pinger {
	return &Pinger{
		sender:       sender,
		logger:       logger,
		outstanding:  make(map[int64]struct{}),
		stopCh:       make(chan struct{}),
		onDisconnect: onDisconnect,
	}
}

// Start begins the periodic ping loop.
func (p *Pinger) Start() {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.sendPing()
			}
		}
	}()
}

// Stop halts the ping loop.
func (p *Pinger) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pinger) sendPing() {
	pingID, err := crypto.RandomUint64()
	if err != nil {
		p.logger.WarningError("cannot generate ping id", err)
		return
	}

	buf := mtwire.NewBuffer()
	buf.PutUint32(ctorPingDelayDiscon)
	buf.PutInt64(int64(pingID))
	buf.PutInt32(int32(pingDisconnectTimeout.Seconds()))

	if _, err := p.sender.Send(buf.Bytes()); err != nil {
		p.logger.WarningError("cannot send ping", err)
		return
	}

	p.mu.Lock()
	p.outstanding[int64(pingID)] = struct{}{}
	p.mu.Unlock()

	id := int64(pingID)

	time.AfterFunc(pingDisconnectTimeout, func() {
		p.mu.Lock()
		_, stillOutstanding := p.outstanding[id]
		delete(p.outstanding, id)
		p.mu.Unlock()

		if stillOutstanding && p.onDisconnect != nil {
			p.onDisconnect()
		}
	})
}

// OnPong must be called by the Sender's Handler when a pong arrives,
// clearing the corresponding outstanding ping.
func (p *Pinger) OnPong(pingID int64) {
	p.mu.Lock()
	delete(p.outstanding, pingID)
	p.mu.Unlock()
}
