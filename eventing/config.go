package eventing

import (
	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/storing"
)

// KeverConfig is the explicit configuration a Kever is constructed with — no
// package-level mutable defaults, per the Design Notes' "replace mutable
// global state with explicit configuration structs passed to constructors".
type KeverConfig struct {
	Store      storing.Store
	Logger     *zap.Logger
	DigestCode core.MatterCode // default SAID/Nexter digest code, e.g. core.CodeBlake3_256
}

// DefaultKeverConfig returns a KeverConfig backed by the given store, a
// no-op logger, and Blake3-256 digests, suitable for tests and embedders
// that do not care to wire their own.
func DefaultKeverConfig(store storing.Store) KeverConfig {
	return KeverConfig{
		Store:      store,
		Logger:     zap.NewNop(),
		DigestCode: core.CodeBlake3_256,
	}
}

// KeveryConfig is the explicit configuration a Kevery dispatcher is
// constructed with.
type KeveryConfig struct {
	Store  storing.Store
	Logger *zap.Logger
	// Local marks this Kevery as trusting events sourced from its own
	// habitat (spec §4.7: "a lax=false, local=true dispatcher trusts its
	// own habitat's events"). Lax is intentionally not modeled as a
	// separate field: this implementation always performs full
	// verification, since the core never constructs the embedder-trusted
	// fast path itself.
	Local    bool
	Handlers HandlerTable
}

// DefaultKeveryConfig returns a KeveryConfig backed by the given store, a
// no-op logger, and no registered handlers.
func DefaultKeveryConfig(store storing.Store) KeveryConfig {
	return KeveryConfig{
		Store:  store,
		Logger: zap.NewNop(),
	}
}
