// Package session defines the backend-agnostic persistence interface of
// §4.7: datacenter records, authorization keys, update state, per-channel
// state, and the entity cache, all written transactionally where the spec
// requires it (key + identity at sign-in). Two backends are provided:
// session/memstore (no persistence) and session/sqlstore (embedded SQL,
// one file per account).
package session

import "context"

// Datacenter is the persisted form of §3's Datacenter record.
type Datacenter struct {
	ID      int
	Address string
	Home    bool
	Media   bool
}

// UpdateState is the persisted form of §3's account-scoped UpdateState
// counters.
type UpdateState struct {
	Pts  int32
	Qts  int32
	Date int32
	Seq  int32
}

// EntityRecord is the persisted form of one entity/Cache entry.
type EntityRecord struct {
	ID         int64
	Kind       int
	AccessHash int64
	Username   string
	Phone      string
}

// Store is §4.7's backend-agnostic session interface.
type Store interface {
	LoadDatacenter(ctx context.Context, id int) (Datacenter, bool, error)
	SaveDatacenter(ctx context.Context, dc Datacenter) error

	LoadAuthKey(ctx context.Context, dcID int) ([]byte, bool, error)
	SaveAuthKey(ctx context.Context, dcID int, key []byte) error
	ClearAuthKey(ctx context.Context, dcID int) error

	LoadUpdateState(ctx context.Context) (UpdateState, bool, error)
	SaveUpdateState(ctx context.Context, state UpdateState) error

	LoadChannelState(ctx context.Context, channelID int64) (int32, bool, error)
	SaveChannelState(ctx context.Context, channelID int64, pts int32) error

	GetEntity(ctx context.Context, id int64) (EntityRecord, bool, error)
	PutEntity(ctx context.Context, record EntityRecord) error

	// BeginTx opens a transaction scoped to a single key; the Tx exposes
	// the same read/write surface as Store, committed or rolled back
	// explicitly (§4.7: "atomic writes of key + identity at sign-in").
	BeginTx(ctx context.Context) (Tx, error)

	// Close releases any resources (file handles, connections) held by
	// the backend.
	Close() error
}

// Tx is a Store opened within a transaction boundary.
type Tx interface {
	Store

	Commit() error
	Rollback() error
}
