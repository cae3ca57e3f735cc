package storing

import "fmt"

var (
	// ErrNotFound is returned by helpers built on SubDB that need a hard
	// failure rather than SubDB.Get's (value, false, nil) not-present
	// signal, e.g. when a caller looks up a key it just wrote.
	ErrNotFound = fmt.Errorf("storing: key not found")
	// ErrBackendUnavailable indicates a durable backend (e.g. azureblob)
	// could not reach its remote store.
	ErrBackendUnavailable = fmt.Errorf("storing: backend unavailable")
)
