package mtclient

import "errors"

var (
	// ErrDirectoryNotDefined is returned by New when Config.Directory is nil.
	ErrDirectoryNotDefined = errors.New("mtclient: Config.Directory is not defined")
	// ErrPublicKeysNotDefined is returned by New when Config.PublicKeys is nil.
	ErrPublicKeysNotDefined = errors.New("mtclient: Config.PublicKeys is not defined")
	// ErrStoreNotDefined is returned by New when Config.Store is nil.
	ErrStoreNotDefined = errors.New("mtclient: Config.Store is not defined")
	// ErrLoggerNotDefined is returned by New when Config.Logger is nil.
	ErrLoggerNotDefined = errors.New("mtclient: Config.Logger is not defined")
	// ErrHomeDCNotDefined is returned by New when Config.HomeDC is zero.
	ErrHomeDCNotDefined = errors.New("mtclient: Config.HomeDC is not defined")
	// ErrNotConnected reports a closed client. Invoke and the
	// takeout/logout helpers do not check whether Close has been called
	// and do not return it.
	ErrNotConnected = errors.New("mtclient: client is closed")
)
