package mtclient

import (
	"github.com/mtprotogo/core/authkey"
	"github.com/mtprotogo/core/dcmanager"
	"github.com/mtprotogo/core/entity"
	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/rpc"
	"github.com/mtprotogo/core/session"
	"github.com/mtprotogo/core/transport"
	"github.com/mtprotogo/core/updates"
)

// DefaultLayer is used when Config.Layer.Layer is left at zero.
const DefaultLayer = 181

// DefaultUpdateConcurrency is the default size of the updates dispatch
// worker pool when Config.UpdateConcurrency is left at zero.
const DefaultUpdateConcurrency = 8

// Config collects every dependency and tunable a Client needs (the
// mtglib.ProxyOpts-equivalent settings struct, grounded on
// mtglib/proxy_opts.go's shape: mandatory fields documented as such,
// optional ones defaulted through unexported getters).
type Config struct {
	// HomeDC is the account's home datacenter id.
	//
	// This is a mandatory setting.
	HomeDC int

	// Directory resolves a DC id to its dialable addresses.
	//
	// This is a mandatory setting.
	Directory dcmanager.DCDirectory

	// Connector opens the underlying byte stream (§4.1); DialTCP is used
	// when left nil.
	//
	// This is an optional setting.
	Connector transport.Connector

	// Mode selects the transport framing (§4.1).
	//
	// This is an optional setting. Default: ModeFull (the zero value).
	Mode transport.Mode

	// PublicKeys resolves the RSA keys the AuthKey exchange validates the
	// server's resPQ fingerprint against (§4.3).
	//
	// This is a mandatory setting.
	PublicKeys authkey.KnownPublicKeys

	// Store persists datacenters, auth keys, update state, channel state,
	// and the entity cache (§4.7).
	//
	// This is a mandatory setting.
	Store session.Store

	// Logger receives every component's structured log output.
	//
	// This is a mandatory setting.
	Logger mtclog.Logger

	// Layer carries the initConnection parameters sent once per
	// connection (§4.6 "first-use wrapping").
	//
	// This is an optional setting; Layer.Layer defaults to DefaultLayer if
	// left at zero, but APIID and the device/system fields should be set
	// by the caller.
	Layer rpc.LayerConfig

	// GetDifference resolves a detected update gap (§4.6). May be left nil
	// for callers that never expect one (e.g. tests).
	//
	// This is an optional setting.
	GetDifference updates.GetDifference

	// DecodeUpdates turns the raw bytes rpc.Dispatcher classifies as an
	// updates-shaped message into the (ChannelKey, Update) pairs the
	// pipeline sequences. Decoding the schema-defined updates/
	// updatesCombined/updateShort* constructors is a generated-schema
	// concern (§6) this core does not own, the same extension point as
	// GetDifference and Extractor.
	//
	// This is an optional setting; leaving it nil means raw update
	// payloads are received but never sequenced or delivered.
	DecodeUpdates UpdateDecoder

	// Extractor pulls peer descriptions out of RPC replies and update
	// payloads for the entity cache (§4.6 "EntityCache integration").
	//
	// This is an optional setting; leaving it nil disables entity
	// tracking.
	Extractor entity.Extractor

	// UpdateConcurrency sizes the updates dispatch worker pool.
	//
	// This is an optional setting. Default: DefaultUpdateConcurrency.
	UpdateConcurrency int

	// ObserverFactories builds one events.Observer per delivery lane
	// (mtcstats.PrometheusFactory.Make and mtcstats.StatsDFactory.Make are
	// typical entries).
	//
	// This is an optional setting.
	ObserverFactories []events.ObserverFactory

	// RekeyOnDuplicateAuthKey decides how AUTH_KEY_DUPLICATED is handled
	// (§9's open configuration switch): when true, the client clears the
	// stored key for the offending DC and lets the next EnsureSender
	// renegotiate a fresh one; when false, the error is only classified
	// (rpc.IsAuthKeyDuplicated) and surfaced to the caller unmodified.
	//
	// This is an optional setting. Default: false.
	RekeyOnDuplicateAuthKey bool
}

func (c Config) valid() error {
	switch {
	case c.Directory == nil:
		return ErrDirectoryNotDefined
	case c.PublicKeys == nil:
		return ErrPublicKeysNotDefined
	case c.Store == nil:
		return ErrStoreNotDefined
	case c.Logger == nil:
		return ErrLoggerNotDefined
	case c.HomeDC == 0:
		return ErrHomeDCNotDefined
	}

	return nil
}

func (c Config) getMode() transport.Mode {
	return c.Mode
}

func (c Config) getUpdateConcurrency() int {
	if c.UpdateConcurrency == 0 {
		return DefaultUpdateConcurrency
	}

	return c.UpdateConcurrency
}

func (c Config) getLayer() rpc.LayerConfig {
	layer := c.Layer
	if layer.Layer == 0 {
		layer.Layer = DefaultLayer
	}

	return layer
}
