// Package storing defines the abstract ordered key/value store that all
// persistent KERI state is expressed through, plus a reference in-memory
// implementation and an optional durable blob-backed one.
package storing

import "context"

// Sub-database names, one per persisted index spec §6.3 names. A Store
// implementation need not create them eagerly; SubDB should create on first
// use.
const (
	SubKELs   = "kels"   // event-digest index per (prefix, sn), ordered
	SubEvts   = "evts"   // raw event bytes by (prefix, said)
	SubSigs   = "sigs"   // controller signatures by event digest
	SubRcts   = "rcts"   // non-transferable receipt couples
	SubUres   = "ures"   // unverified-receipt escrow
	SubVres   = "vres"   // transferable receipt quadruples (verified)
	SubUwes   = "uwes"   // unverified-witness-receipt escrow
	SubPwes   = "pwes"   // partially-witnessed escrow
	SubPses   = "pses"   // partially-signed escrow
	SubOoes   = "ooes"   // out-of-order escrow
	SubOodes  = "oodes"  // out-of-order-delegation escrow
	SubLdes   = "ldes"   // likely-duplicitous events
	SubStates = "states" // latest Kever snapshot per prefix (ksn mapping)
	SubFons   = "fons"   // first-seen ordinal per (prefix, said)
	SubFels   = "fels"   // (prefix, fn) -> said
	SubEnds   = "ends"   // reply store: end-role authorizations
	SubEans   = "eans"   // reply store: end-role escrow
	SubLocs   = "locs"   // reply store: location-scheme records
	SubLans   = "lans"   // reply store: location-scheme escrow
	SubRpys   = "rpys"   // reply store: raw reply records by natural key
	SubScgs   = "scgs"   // reply store: signer couple by natural key
	SubSsgs   = "ssgs"   // reply store: signature by natural key
	SubSdts   = "sdts"   // reply store: datetime by natural key
	SubRpes   = "rpes"   // reply store escrow
)

// SubDB is one named, ordered key/value sub-database within a Store. Keys
// sort lexicographically on their raw bytes; callers that need numeric
// ordering (sequence numbers, first-seen ordinals) must encode keys as
// fixed-width big-endian hex via the helpers in keys.go so byte order
// matches numeric order.
type SubDB interface {
	// Put writes value at key, overwriting any existing value.
	Put(ctx context.Context, key, value []byte) error

	// PutFirst writes value at key only if key is not already present. It
	// reports whether the write happened, so callers can distinguish a
	// fresh first-seen entry from a duplicate.
	PutFirst(ctx context.Context, key, value []byte) (bool, error)

	// Get returns the value at key and whether it was present.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	// Delete removes key. It is not an error for key to be absent.
	Delete(ctx context.Context, key []byte) error

	// GetLastByPrefix returns the greatest key with the given prefix and its
	// value, used to find the latest event digest for a prefix's key-event
	// index (sn-ordered keys share the prefix, the last one is the
	// current sn).
	GetLastByPrefix(ctx context.Context, prefix []byte) (key, value []byte, ok bool, err error)

	// Range calls fn for every (key, value) pair with the given prefix in
	// ascending key order, stopping early if fn returns false.
	Range(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
}

// Store is a named collection of SubDBs. A Kever/Kevery/Reply component is
// constructed with one Store and is the sole writer for the sub-dbs it owns,
// per spec §6's single shared store / per-prefix serialized writes rule.
type Store interface {
	SubDB(name string) SubDB
}
