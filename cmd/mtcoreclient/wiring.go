package main

import (
	"time"

	"github.com/mtprotogo/core/dcmanager"
	"github.com/mtprotogo/core/internal/config"
	"github.com/mtprotogo/core/mtclog"
	"github.com/mtprotogo/core/rpc"
	"github.com/mtprotogo/core/transport"
)

// buildDirectory returns a static MapDCDirectory, or a RefreshableDirectory
// kept warm by a background DNS-over-HTTPS refresh loop when the config
// enables it (§3). The second return value stops that loop on shutdown.
func buildDirectory(cfg *config.Config, logger mtclog.Logger) (dcmanager.DCDirectory, func() error) {
	seeds := make(map[int]string, len(cfg.DCs))
	for _, dc := range cfg.DCs {
		seeds[dc.ID] = dc.Address
	}

	if !cfg.DNSRefresh.Enabled {
		directory := make(dcmanager.MapDCDirectory, len(seeds))
		for id, addr := range seeds {
			directory[id] = []string{addr}
		}

		return directory, nil
	}

	directory := dcmanager.NewRefreshableDirectory(seeds, logger.Named("dnsrefresh"))
	directory.DoHServer = cfg.DNSRefresh.Server

	interval := 24 * time.Hour

	if cfg.DNSRefresh.Interval != "" {
		if parsed, err := time.ParseDuration(cfg.DNSRefresh.Interval); err == nil {
			interval = parsed
		}
	}

	directory.Start(interval)

	return directory, func() error {
		directory.Stop()
		return nil
	}
}

// buildConnector picks the tuned direct dialer, or a SOCKS5 Connector when
// a proxy address is configured (§4.1).
func buildConnector(cfg config.Transport) transport.Connector {
	if cfg.Proxy == "" {
		return transport.DialTCPTuned
	}

	return &transport.SOCKS5Connector{ProxyAddress: cfg.Proxy}
}

func transportModeFor(mode string) transport.Mode {
	switch mode {
	case "intermediate":
		return transport.ModeIntermediate
	case "abridged":
		return transport.ModeAbridged
	case "obfuscated2":
		return transport.ModeObfuscated2
	default:
		return transport.ModeFull
	}
}

// layerConfigFor maps the TOML layer section onto rpc.LayerConfig.
// api_hash is deliberately not part of LayerConfig: initConnection never
// carries it, only the schema-generated auth.* calls this core does not
// own do, so config.Layer.APIHash is left for the caller to read directly.
func layerConfigFor(cfg config.Layer) rpc.LayerConfig {
	return rpc.LayerConfig{
		Layer:          int32(cfg.Layer),
		APIID:          int32(cfg.APIID),
		DeviceModel:    cfg.DeviceModel,
		SystemVersion:  cfg.SystemVersion,
		AppVersion:     cfg.AppVersion,
		SystemLangCode: cfg.SystemLangCode,
		LangPack:       cfg.LangPack,
		LangCode:       cfg.LangCode,
	}
}
