package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mtprotogo/core/internal/config"
	"github.com/mtprotogo/core/mtclient"
	"github.com/mtprotogo/core/mtclog"
)

type runCmd struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"` //nolint: lll
}

func (r runCmd) Run() error {
	cfg, err := config.Load(r.ConfigPath)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	built, closers, err := buildClientConfig(cfg)
	if err != nil {
		return err
	}
	defer closeAll(closers)

	client, err := mtclient.New(built)
	if err != nil {
		return fmt.Errorf("mtcoreclient: cannot construct client: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// help.getConfig (constructor 0xc4f9186b) takes no parameters and is
	// the cheapest way to exercise a fresh connection/handshake on startup.
	result := client.Invoke(ctx, "help.getConfig", nil)
	if result.Err != nil {
		return fmt.Errorf("mtcoreclient: help.getConfig failed: %w", result.Err)
	}

	fmt.Fprintf(os.Stdout, "connected to dc %d, %d byte reply\n", cfg.HomeDC, len(result.Payload))

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-client.Updates():
			if !ok {
				return nil
			}

			fmt.Fprintf(os.Stdout, "update account=%d channel=%d %d bytes\n", u.AccountID, u.ChannelID, len(u.Payload))
		}
	}
}

// buildClientConfig wires a parsed config.Config into mtclient.Config,
// opening whichever session store and stats listeners it names; closers
// must be closed (in reverse order) on shutdown.
func buildClientConfig(cfg *config.Config) (mtclient.Config, []func() error, error) {
	var closers []func() error

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	// run_id ties together every log line from this invocation, since a
	// single host can run several mtcoreclient processes against the
	// same config concurrently (one per account).
	logger := mtclog.New(os.Stderr, level).BindStr("run_id", uuid.NewString())

	store, storeCloser, err := openSessionStore(cfg.Session)
	if err != nil {
		return mtclient.Config{}, closers, err
	}

	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}

	keys, err := loadPublicKeys(cfg.PublicKeys)
	if err != nil {
		return mtclient.Config{}, closers, err
	}

	directory, directoryCloser := buildDirectory(cfg, logger)
	if directoryCloser != nil {
		closers = append(closers, directoryCloser)
	}

	observers, observerClosers, err := buildObserverFactories(cfg.Stats)
	if err != nil {
		return mtclient.Config{}, closers, err
	}

	closers = append(closers, observerClosers...)

	built := mtclient.Config{
		HomeDC:                  cfg.HomeDC,
		Directory:               directory,
		Connector:               buildConnector(cfg.Transport),
		Mode:                    transportModeFor(cfg.Transport.Mode),
		PublicKeys:              keys,
		Store:                   store,
		Logger:                  logger,
		Layer:                   layerConfigFor(cfg.Layer),
		UpdateConcurrency:       cfg.UpdateConcurrency,
		ObserverFactories:       observers,
		RekeyOnDuplicateAuthKey: cfg.RekeyOnDuplicateAuthKey,
	}

	return built, closers, nil
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
}
