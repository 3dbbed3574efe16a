package main

import (
	"fmt"

	"github.com/mtprotogo/core/internal/config"
)

type sessionCmd struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"` //nolint: lll
}

func (s sessionCmd) Run() error {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("home dc: %d\n", cfg.HomeDC)
	fmt.Printf("session driver: %s\n", cfg.Session.Driver)

	if cfg.Session.Driver == "sqlite" {
		fmt.Printf("session path: %s\n", cfg.Session.Path)
	}

	fmt.Println("known datacenters:")

	for _, dc := range cfg.DCs {
		fmt.Printf("  dc %d -> %s\n", dc.ID, dc.Address)
	}

	return nil
}
