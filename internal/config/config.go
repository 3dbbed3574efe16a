// Package config parses the TOML file a mtcoreclient invocation is pointed
// at into the settings mtclient.Config needs, the client-library
// counterpart to the teacher's JSON-and-custom-Type-wrapper internal/config
// package (same "one struct, Validate, String" shape, rebuilt around
// github.com/pelletier/go-toml since a long-lived client config is more at
// home hand-edited than the proxy's container-env JSON blob).
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// PublicKey is one entry of the RSA key set the AuthKey exchange (§4.3)
// trusts, serialized as a PEM block the way Telegram itself distributes
// its server keys.
type PublicKey struct {
	PEM string `toml:"pem"`
}

// DC is one seed datacenter address, keyed by id (§3's config.dc_options).
type DC struct {
	ID      int    `toml:"id"`
	Address string `toml:"address"`
}

// DNSRefresh controls dcmanager.RefreshableDirectory; left disabled, the
// client dials the static DCs table only.
type DNSRefresh struct {
	Enabled  bool   `toml:"enabled"`
	Server   string `toml:"server"`
	Interval string `toml:"interval"`
}

// Transport selects the wire framing and optional SOCKS5 egress (§4.1).
type Transport struct {
	Mode  string `toml:"mode"`
	Proxy string `toml:"proxy"`
}

// Session selects where AuthKeys, update state and the entity cache
// persist (§4.7).
type Session struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// Layer carries the initConnection parameters sent once per connection
// (§4.6 "first-use wrapping").
type Layer struct {
	Layer          int    `toml:"layer"`
	APIID          int    `toml:"api_id"`
	APIHash        string `toml:"api_hash"`
	DeviceModel    string `toml:"device_model"`
	SystemVersion  string `toml:"system_version"`
	AppVersion     string `toml:"app_version"`
	SystemLangCode string `toml:"system_lang_code"`
	LangPack       string `toml:"lang_pack"`
	LangCode       string `toml:"lang_code"`
}

// Stats mirrors the teacher's stats section: either sink can be enabled
// independently, both optional (§SPEC_FULL observability).
type Stats struct {
	Prometheus struct {
		Enabled      bool   `toml:"enabled"`
		BindTo       string `toml:"bind_to"`
		HTTPPath     string `toml:"http_path"`
		MetricPrefix string `toml:"metric_prefix"`
	} `toml:"prometheus"`
	StatsD struct {
		Enabled      bool   `toml:"enabled"`
		Address      string `toml:"address"`
		MetricPrefix string `toml:"metric_prefix"`
	} `toml:"statsd"`
}

// Log configures mtclog's output.
type Log struct {
	Level string `toml:"level"`
}

// Config is the top-level TOML document mtcoreclient reads.
type Config struct {
	HomeDC                  int          `toml:"home_dc"`
	DCs                     []DC         `toml:"dc"`
	DNSRefresh              DNSRefresh   `toml:"dns_refresh"`
	PublicKeys              []PublicKey  `toml:"public_key"`
	Session                 Session      `toml:"session"`
	Transport               Transport    `toml:"transport"`
	Layer                   Layer        `toml:"layer"`
	UpdateConcurrency       int          `toml:"update_concurrency"`
	RekeyOnDuplicateAuthKey bool         `toml:"rekey_on_duplicate_auth_key"`
	Log                     Log          `toml:"log"`
	Stats                   Stats        `toml:"stats"`
}

// Load reads and parses the TOML document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the mandatory fields mtclient.Config will otherwise
// reject anyway, surfacing the same errors earlier and with the
// offending TOML path attached.
func (c *Config) Validate() error {
	if c.HomeDC == 0 {
		return fmt.Errorf("config: home_dc is required")
	}

	if len(c.DCs) == 0 {
		return fmt.Errorf("config: at least one [[dc]] entry is required")
	}

	if len(c.PublicKeys) == 0 {
		return fmt.Errorf("config: at least one [[public_key]] entry is required")
	}

	switch c.Session.Driver {
	case "memory":
	case "sqlite":
		if c.Session.Path == "" {
			return fmt.Errorf("config: session.path is required when session.driver is \"sqlite\"")
		}
	case "":
		return fmt.Errorf("config: session.driver is required (\"memory\" or \"sqlite\")")
	default:
		return fmt.Errorf("config: unknown session.driver %q", c.Session.Driver)
	}

	switch c.Transport.Mode {
	case "", "full", "intermediate", "abridged", "obfuscated2":
	default:
		return fmt.Errorf("config: unknown transport.mode %q", c.Transport.Mode)
	}

	if c.Layer.APIID == 0 {
		return fmt.Errorf("config: layer.api_id is required")
	}

	if c.Layer.APIHash == "" {
		return fmt.Errorf("config: layer.api_hash is required")
	}

	if c.Stats.Prometheus.Enabled && c.Stats.Prometheus.BindTo == "" {
		return fmt.Errorf("config: stats.prometheus.bind_to is required when stats.prometheus is enabled")
	}

	if c.Stats.StatsD.Enabled && c.Stats.StatsD.Address == "" {
		return fmt.Errorf("config: stats.statsd.address is required when stats.statsd is enabled")
	}

	return nil
}

// String renders the config back to TOML for diagnostic logging; there is
// no secret field to mask here (api_hash is not secret on its own and the
// session store holds the only sensitive state, identified by path, not
// value).
func (c *Config) String() string {
	data, err := toml.Marshal(*c)
	if err != nil {
		return ""
	}

	return string(data)
}
