package updates

import (
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/mtprotogo/core/mtclog"
)

// Subscriber receives one applied update, already in pts order for its
// key.
type Subscriber func(key ChannelKey, u Update)

type dispatchJob struct {
	key    ChannelKey
	update Update
}

// Dispatch fans applied updates out to a Subscriber through a bounded
// worker pool, grounded on mtglib/proxy.go's ants.NewPoolWithFunc
// (repurposed from "one goroutine per inbound connection" to "one
// goroutine per update-apply job"). Different ChannelKeys run concurrently;
// the same key is always delivered in submission order, one job at a
// time, by chaining the next queued job only after the Subscriber call
// for the current one returns.
type Dispatch struct {
	pool       *ants.PoolWithFunc
	subscriber Subscriber
	logger     mtclog.Logger

	mu     sync.Mutex
	queues map[ChannelKey][]Update
	active map[ChannelKey]bool
}

// NewDispatch creates a Dispatch with concurrency worker slots.
func NewDispatch(concurrency int, subscriber Subscriber, logger mtclog.Logger) (*Dispatch, error) {
	d := &Dispatch{
		subscriber: subscriber,
		logger:     logger,
		queues:     make(map[ChannelKey][]Update),
		active:     make(map[ChannelKey]bool),
	}

	pool, err := ants.NewPoolWithFunc(concurrency, func(arg interface{}) {
		job, _ := arg.(dispatchJob) //nolint:forcetypeassert

		d.subscriber(job.key, job.update)
		d.drainNext(job.key)
	}, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	d.pool = pool

	return d, nil
}

// Submit enqueues u for delivery under key, starting delivery immediately
// if key has no job currently in flight.
func (d *Dispatch) Submit(key ChannelKey, u Update) {
	d.mu.Lock()

	if d.active[key] {
		d.queues[key] = append(d.queues[key], u)
		d.mu.Unlock()

		return
	}

	d.active[key] = true
	d.mu.Unlock()

	d.invoke(key, u)
}

func (d *Dispatch) invoke(key ChannelKey, u Update) {
	if err := d.pool.Invoke(dispatchJob{key: key, update: u}); err != nil {
		d.logger.WarningError("updates: dispatch pool rejected job", err)
		d.drainNext(key)
	}
}

func (d *Dispatch) drainNext(key ChannelKey) {
	d.mu.Lock()

	q := d.queues[key]
	if len(q) == 0 {
		d.active[key] = false
		d.mu.Unlock()

		return
	}

	next := q[0]
	d.queues[key] = q[1:]
	d.mu.Unlock()

	d.invoke(key, next)
}

// Stop releases the worker pool.
func (d *Dispatch) Stop() {
	d.pool.Release()
}
