// Package sqlstore implements session.Store on an embedded SQLite
// database, one file per account (§4.7). Grounded on nabbar-golib's
// database/gorm package: the teacher repo itself carries no SQL
// dependency, so this stack (gorm.io/gorm, gorm.io/driver/sqlite,
// mattn/go-sqlite3) is adopted wholesale from the rest of the retrieval
// pack rather than dropped.
package sqlstore

import (
	"context"
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mtprotogo/core/session"
)

type datacenterModel struct {
	ID      int `gorm:"primaryKey"`
	Address string
	Home    bool
	Media   bool
}

type authKeyModel struct {
	DCID int `gorm:"primaryKey"`
	Key  []byte
}

type updateStateModel struct {
	ID   int `gorm:"primaryKey"` // always 1: account-scoped singleton row
	Pts  int32
	Qts  int32
	Date int32
	Seq  int32
}

type channelStateModel struct {
	ChannelID int64 `gorm:"primaryKey"`
	Pts       int32
}

type entityModel struct {
	ID         int64 `gorm:"primaryKey"`
	Kind       int
	AccessHash int64
	Username   string
	Phone      string
}

const updateStateSingletonID = 1

// Store is a session.Store backed by an embedded SQLite file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite database at path and
// migrates its schema. path is considered sensitive (§6); Open does not
// check or warn about the file's permission mode.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&datacenterModel{},
		&authKeyModel{},
		&updateStateModel{},
		&channelStateModel{},
		&entityModel{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) LoadDatacenter(ctx context.Context, id int) (session.Datacenter, bool, error) {
	var model datacenterModel

	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Datacenter{}, false, nil
	}

	if err != nil {
		return session.Datacenter{}, false, err
	}

	return session.Datacenter{ID: model.ID, Address: model.Address, Home: model.Home, Media: model.Media}, true, nil
}

func (s *Store) SaveDatacenter(ctx context.Context, dc session.Datacenter) error {
	model := datacenterModel{ID: dc.ID, Address: dc.Address, Home: dc.Home, Media: dc.Media}

	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *Store) LoadAuthKey(ctx context.Context, dcID int) ([]byte, bool, error) {
	var model authKeyModel

	err := s.db.WithContext(ctx).First(&model, "dc_id = ?", dcID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return model.Key, true, nil
}

func (s *Store) SaveAuthKey(ctx context.Context, dcID int, key []byte) error {
	model := authKeyModel{DCID: dcID, Key: key}

	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *Store) ClearAuthKey(ctx context.Context, dcID int) error {
	return s.db.WithContext(ctx).Delete(&authKeyModel{}, "dc_id = ?", dcID).Error
}

func (s *Store) LoadUpdateState(ctx context.Context) (session.UpdateState, bool, error) {
	var model updateStateModel

	err := s.db.WithContext(ctx).First(&model, "id = ?", updateStateSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.UpdateState{}, false, nil
	}

	if err != nil {
		return session.UpdateState{}, false, err
	}

	return session.UpdateState{Pts: model.Pts, Qts: model.Qts, Date: model.Date, Seq: model.Seq}, true, nil
}

func (s *Store) SaveUpdateState(ctx context.Context, state session.UpdateState) error {
	model := updateStateModel{ID: updateStateSingletonID, Pts: state.Pts, Qts: state.Qts, Date: state.Date, Seq: state.Seq}

	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *Store) LoadChannelState(ctx context.Context, channelID int64) (int32, bool, error) {
	var model channelStateModel

	err := s.db.WithContext(ctx).First(&model, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	return model.Pts, true, nil
}

func (s *Store) SaveChannelState(ctx context.Context, channelID int64, pts int32) error {
	model := channelStateModel{ChannelID: channelID, Pts: pts}

	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *Store) GetEntity(ctx context.Context, id int64) (session.EntityRecord, bool, error) {
	var model entityModel

	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.EntityRecord{}, false, nil
	}

	if err != nil {
		return session.EntityRecord{}, false, err
	}

	return session.EntityRecord{
		ID: model.ID, Kind: model.Kind, AccessHash: model.AccessHash,
		Username: model.Username, Phone: model.Phone,
	}, true, nil
}

func (s *Store) PutEntity(ctx context.Context, record session.EntityRecord) error {
	model := entityModel{
		ID: record.ID, Kind: record.Kind, AccessHash: record.AccessHash,
		Username: record.Username, Phone: record.Phone,
	}

	return s.db.WithContext(ctx).Save(&model).Error
}

// BeginTx opens a gorm transaction (§4.7: "atomic writes of key + identity
// at sign-in").
func (s *Store) BeginTx(ctx context.Context) (session.Tx, error) {
	txDB := s.db.WithContext(ctx).Begin()
	if txDB.Error != nil {
		return nil, txDB.Error
	}

	return &tx{Store: Store{db: txDB}}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

type tx struct {
	Store
}

func (t *tx) Commit() error {
	return t.db.Commit().Error
}

func (t *tx) Rollback() error {
	return t.db.Rollback().Error
}
