package catalog

import "fmt"

// NewStore builds an uninitialized store; call Init before use. path is the
// sqlite file or the badger directory.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	case "badger":
		return NewBadgerStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
