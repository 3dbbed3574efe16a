// Package memstore implements session.Store with no persistence,
// suitable for tests and one-shot bots (§4.7).
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/mtprotogo/core/session"
)

var errTxDone = errors.New("memstore: transaction already committed or rolled back")

// Store is an in-memory session.Store. The zero value is not usable; use
// New.
type Store struct {
	mu sync.Mutex

	datacenters  map[int]session.Datacenter
	authKeys     map[int][]byte
	updateState  session.UpdateState
	hasState     bool
	channelState map[int64]int32
	entities     map[int64]session.EntityRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		datacenters:  make(map[int]session.Datacenter),
		authKeys:     make(map[int][]byte),
		channelState: make(map[int64]int32),
		entities:     make(map[int64]session.EntityRecord),
	}
}

func (s *Store) LoadDatacenter(_ context.Context, id int) (session.Datacenter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dc, ok := s.datacenters[id]

	return dc, ok, nil
}

func (s *Store) SaveDatacenter(_ context.Context, dc session.Datacenter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.datacenters[dc.ID] = dc

	return nil
}

func (s *Store) LoadAuthKey(_ context.Context, dcID int) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.authKeys[dcID]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(key))
	copy(out, key)

	return out, true, nil
}

func (s *Store) SaveAuthKey(_ context.Context, dcID int, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, len(key))
	copy(out, key)
	s.authKeys[dcID] = out

	return nil
}

func (s *Store) ClearAuthKey(_ context.Context, dcID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.authKeys, dcID)

	return nil
}

func (s *Store) LoadUpdateState(_ context.Context) (session.UpdateState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateState, s.hasState, nil
}

func (s *Store) SaveUpdateState(_ context.Context, state session.UpdateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateState = state
	s.hasState = true

	return nil
}

func (s *Store) LoadChannelState(_ context.Context, channelID int64) (int32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pts, ok := s.channelState[channelID]

	return pts, ok, nil
}

func (s *Store) SaveChannelState(_ context.Context, channelID int64, pts int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channelState[channelID] = pts

	return nil
}

func (s *Store) GetEntity(_ context.Context, id int64) (session.EntityRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entities[id]

	return record, ok, nil
}

func (s *Store) PutEntity(_ context.Context, record session.EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[record.ID] = record

	return nil
}

// BeginTx returns a Tx that stages writes against a snapshot copy of s:
// in-memory writes are already atomic under s.mu, so commit/rollback only
// decide whether the staged copy replaces the live maps.
func (s *Store) BeginTx(_ context.Context) (session.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &tx{live: s, staged: s.snapshotLocked()}, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) snapshotLocked() *Store {
	snap := New()

	for k, v := range s.datacenters {
		snap.datacenters[k] = v
	}

	for k, v := range s.authKeys {
		out := make([]byte, len(v))
		copy(out, v)
		snap.authKeys[k] = out
	}

	for k, v := range s.channelState {
		snap.channelState[k] = v
	}

	for k, v := range s.entities {
		snap.entities[k] = v
	}

	snap.updateState = s.updateState
	snap.hasState = s.hasState

	return snap
}

// tx stages writes against a private copy of live's maps, applied back to
// live only on Commit.
type tx struct {
	live   *Store
	staged *Store
	done   bool
}

func (t *tx) LoadDatacenter(ctx context.Context, id int) (session.Datacenter, bool, error) {
	return t.staged.LoadDatacenter(ctx, id)
}

func (t *tx) SaveDatacenter(ctx context.Context, dc session.Datacenter) error {
	return t.staged.SaveDatacenter(ctx, dc)
}

func (t *tx) LoadAuthKey(ctx context.Context, dcID int) ([]byte, bool, error) {
	return t.staged.LoadAuthKey(ctx, dcID)
}

func (t *tx) SaveAuthKey(ctx context.Context, dcID int, key []byte) error {
	return t.staged.SaveAuthKey(ctx, dcID, key)
}

func (t *tx) ClearAuthKey(ctx context.Context, dcID int) error {
	return t.staged.ClearAuthKey(ctx, dcID)
}

func (t *tx) LoadUpdateState(ctx context.Context) (session.UpdateState, bool, error) {
	return t.staged.LoadUpdateState(ctx)
}

func (t *tx) SaveUpdateState(ctx context.Context, state session.UpdateState) error {
	return t.staged.SaveUpdateState(ctx, state)
}

func (t *tx) LoadChannelState(ctx context.Context, channelID int64) (int32, bool, error) {
	return t.staged.LoadChannelState(ctx, channelID)
}

func (t *tx) SaveChannelState(ctx context.Context, channelID int64, pts int32) error {
	return t.staged.SaveChannelState(ctx, channelID, pts)
}

func (t *tx) GetEntity(ctx context.Context, id int64) (session.EntityRecord, bool, error) {
	return t.staged.GetEntity(ctx, id)
}

func (t *tx) PutEntity(ctx context.Context, record session.EntityRecord) error {
	return t.staged.PutEntity(ctx, record)
}

func (t *tx) BeginTx(ctx context.Context) (session.Tx, error) {
	return t.staged.BeginTx(ctx)
}

func (t *tx) Close() error {
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}

	t.done = true

	t.live.mu.Lock()
	defer t.live.mu.Unlock()

	t.live.datacenters = t.staged.datacenters
	t.live.authKeys = t.staged.authKeys
	t.live.channelState = t.staged.channelState
	t.live.entities = t.staged.entities
	t.live.updateState = t.staged.updateState
	t.live.hasState = t.staged.hasState

	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return errTxDone
	}

	t.done = true

	return nil
}
