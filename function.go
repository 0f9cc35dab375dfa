package wasmjit

import "context"

// Function is a callable entry point, interpreted or native.
// Parameters and results use the wazero uint64 encoding (api.EncodeI32 etc).
type Function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Releaser is a resource whose memory is given back on Close.
type Releaser interface {
	Close(ctx context.Context) error
}
