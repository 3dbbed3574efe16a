package dcmanager

import (
	"context"
	"fmt"

	"github.com/mtprotogo/core/events"
	"github.com/mtprotogo/core/mtproto"
)

func (r MigrationReason) String() string {
	switch r {
	case MigratePhone:
		return "phone_migrate"
	case MigrateNetwork:
		return "network_migrate"
	case MigrateUser:
		return "user_migrate"
	case MigrateFile:
		return "file_migrate"
	default:
		return "unknown"
	}
}

// MigrationReason classifies the *_MIGRATE_n RPC errors that trigger a
// migration (§4.5).
type MigrationReason int

const (
	// MigratePhone corresponds to PHONE_MIGRATE_n.
	MigratePhone MigrationReason = iota
	// MigrateNetwork corresponds to NETWORK_MIGRATE_n.
	MigrateNetwork
	// MigrateUser corresponds to USER_MIGRATE_n.
	MigrateUser
	// MigrateFile corresponds to FILE_MIGRATE_n.
	MigrateFile
)

// AuthTransfer exports login state from the old DC's sender and imports it
// into the new DC's sender (exportAuthorization/importAuthorization,
// §4.5). Callers supply this because the actual RPC bodies are built from
// the generated schema catalogue, which this core does not own (§6).
type AuthTransfer func(ctx context.Context, from, to *mtproto.Sender) error

// Migrate switches to newDC, running the AuthKey exchange against it if no
// key is held yet, then — when reason indicates the user's login context
// should follow (MigratePhone/MigrateUser) and wasAuthorized is true —
// transfers login state via transfer (§4.5 "invoke an exportAuthorization
// on the old sender and importAuthorization on the new one").
//
// FILE_MIGRATE_n and NETWORK_MIGRATE_n do not carry login state: a file
// lives wherever it lives, and a network-level redirect does not imply the
// user's identity moved, so transfer is skipped for MigrateFile and
// MigrateNetwork regardless of wasAuthorized.
func (m *Manager) Migrate(ctx context.Context, oldDC, newDC int, reason MigrationReason, wasAuthorized bool, transfer AuthTransfer) (*mtproto.Sender, error) {
	newSender, err := m.EnsureSender(ctx, newDC)
	if err != nil {
		return nil, fmt.Errorf("dcmanager: cannot establish sender on dc %d: %w", newDC, err)
	}

	transfersLogin := reason == MigratePhone || reason == MigrateUser

	if transfersLogin && wasAuthorized && transfer != nil {
		oldSender, err := m.EnsureSender(ctx, oldDC)
		if err != nil {
			return nil, fmt.Errorf("dcmanager: cannot reach old dc %d to export authorization: %w", oldDC, err)
		}

		if err := transfer(ctx, oldSender, newSender); err != nil {
			return nil, fmt.Errorf("dcmanager: authorization transfer from dc %d to dc %d failed: %w", oldDC, newDC, err)
		}
	}

	if reason == MigratePhone || reason == MigrateUser {
		m.SetHomeDC(newDC)
	}

	m.opts.Events.Send(ctx, events.NewEventMigrated(oldDC, newDC, reason.String()))

	return newSender, nil
}
