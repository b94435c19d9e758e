package storage

import "fmt"

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string // sqlite database file
	Redis   RedisConfig
}

// Open builds the configured backend. An empty backend means sqlite.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		s, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		r, err := OpenRedis(opts.Redis)
		if err != nil {
			return nil, err
		}
		return r, nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", opts.Backend)
	}
}
