package mtcstats

import (
	"strconv"

	statsd "github.com/smira/go-statsd"

	"github.com/mtprotogo/core/events"
)

// StatsDFactory is the alternate metrics backend the teacher carries
// alongside Prometheus (stats/stream_info.go's statsd.Tag helper), wired
// here to this module's own events instead of proxy connection events.
type StatsDFactory struct {
	client       *statsd.Client
	metricPrefix string
}

// NewStatsD dials a statsd daemon at address, tagging every metric with
// metricPrefix.
func NewStatsD(address, metricPrefix string) *StatsDFactory {
	client := statsd.NewClient(address,
		statsd.MaxPacketSize(1400),
		statsd.MetricPrefix(metricPrefix+"."),
	)

	return &StatsDFactory{client: client, metricPrefix: metricPrefix}
}

// Make builds an events.Observer reporting into the statsd client.
func (f *StatsDFactory) Make() events.Observer {
	return statsdObserver{factory: f}
}

// Close flushes and closes the underlying statsd client.
func (f *StatsDFactory) Close() error {
	return f.client.Close() //nolint: wrapcheck
}

type statsdObserver struct {
	events.NoopObserver

	factory *StatsDFactory
}

func (o statsdObserver) OnAuthKeyCreated(e events.EventAuthKeyCreated) {
	o.factory.client.Incr("auth_keys_created", 1, statsd.StringTag("dc", strconv.Itoa(e.DC)))
}

func (o statsdObserver) OnMigrated(e events.EventMigrated) {
	o.factory.client.Incr("migrations", 1,
		statsd.StringTag("from_dc", strconv.Itoa(e.FromDC)),
		statsd.StringTag("to_dc", strconv.Itoa(e.ToDC)),
	)
}

func (o statsdObserver) OnFloodWait(e events.EventFloodWait) {
	dc := statsd.StringTag("dc", strconv.Itoa(e.DC))
	o.factory.client.Incr("flood_waits", 1, dc)
	o.factory.client.Timing("flood_wait_sleep_ms", int64(e.Seconds)*1000, dc)
}

func (o statsdObserver) OnGapDetected(e events.EventGapDetected) {
	o.factory.client.Incr("update_gaps_detected", 1, statsd.StringTag("channel", channelLabel(e.ChannelID)))
}

func (o statsdObserver) OnGapForceResync(e events.EventGapForceResync) {
	o.factory.client.Incr("update_gaps_forced_resync", 1, statsd.StringTag("channel", channelLabel(e.ChannelID)))
}

func (o statsdObserver) OnRPCError(e events.EventRPCError) {
	o.factory.client.Incr("rpc_errors", 1,
		statsd.StringTag("dc", strconv.Itoa(e.DC)),
		statsd.StringTag("name", e.Name),
	)
}

func (o statsdObserver) OnReconnected(e events.EventReconnected) {
	o.factory.client.Incr("reconnects", 1, statsd.StringTag("dc", strconv.Itoa(e.DC)))
}
