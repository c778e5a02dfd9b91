package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is an opaque string key-value persistence layer.
//
// Values are stored as given; callers own their encoding. Get reports a
// missing key with ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Source is the read side of a Store. Legacy migration sources only
// implement this.
type Source interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Options selects and configures a Store implementation.
type Options struct {
	// Driver is one of "memory", "file" or "sqlite".
	Driver string
	// Path is the JSON file (file) or database file (sqlite). Ignored for memory.
	Path string
}

// Open builds the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile, "":
		if opts.Path == "" {
			return nil, errors.New("file store: path is empty")
		}
		return OpenFileStore(opts.Path)
	case DriverSQLite:
		if opts.Path == "" {
			return nil, errors.New("sqlite store: path is empty")
		}
		return OpenSQLiteStore(ctx, opts.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
