package core

// Code tables for the three CESR primitive families used by this
// implementation: Matter (keys, digests, seeds, numbers), Indexer (attached
// signatures), and Counter (attachment group framing).
//
// Wire note: qb64 here is the code string followed by unpadded, URL-safe
// base64 of the raw payload (base64.RawURLEncoding), and qb2 is the code
// string's bytes followed by the raw payload. This keeps the three
// renderings losslessly round-trippable and keeps shortage detection a pure
// function of the code table, without requiring bit-level interleaving of
// code and payload into a shared base64 group — the spec's "leading code
// characters" framing is satisfied either way.

// MatterCode identifies the semantic type and raw size of a Matter value.
type MatterCode string

const (
	CodeEd25519Seed    MatterCode = "A" // Ed25519 private key seed, 32 bytes
	CodeEd25519N       MatterCode = "B" // Ed25519 non-transferable public key, 32 bytes
	CodeX25519         MatterCode = "C" // X25519 public key, 32 bytes
	CodeEd25519        MatterCode = "D" // Ed25519 transferable public key, 32 bytes
	CodeBlake3_256      MatterCode = "E" // Blake3-256 digest, 32 bytes
	CodeBlake2b256      MatterCode = "F" // Blake2b-256 digest, 32 bytes
	CodeSHA3_256        MatterCode = "H" // SHA3-256 digest, 32 bytes
	CodeSHA2_256        MatterCode = "I" // SHA2-256 digest, 32 bytes
	CodeEd25519Sig     MatterCode = "0B" // Ed25519 signature, 64 bytes
	CodeSalt128        MatterCode = "0A" // 128 bit random salt, 16 bytes
	CodeShort          MatterCode = "M" // uint16 encoded as 2 bytes (sequence number helper)
	CodeLong           MatterCode = "0D" // uint32 encoded as 4 bytes
	CodeNumber         MatterCode = "N" // uint64 encoded as 8 bytes (sn, fn)
)

// MatterSizage describes the raw byte length for a Matter code. All codes
// used by this package are fixed size; KERI's variable-length "large" codes
// are not needed for keys, digests, signatures, seeds, or the small integers
// this implementation uses and so are intentionally not modeled.
type MatterSizage struct {
	RawSize int
}

var matterSizes = map[MatterCode]MatterSizage{
	CodeEd25519Seed: {32},
	CodeEd25519N:    {32},
	CodeX25519:      {32},
	CodeEd25519:     {32},
	CodeBlake3_256:  {32},
	CodeBlake2b256:  {32},
	CodeSHA3_256:    {32},
	CodeSHA2_256:    {32},
	CodeEd25519Sig:  {64},
	CodeSalt128:     {16},
	CodeShort:       {2},
	CodeLong:        {4},
	CodeNumber:      {8},
}

// NonTransferableCodes are Matter codes that derive a prefix which can never
// be rotated (its authority is its own public key, forever).
var NonTransferableCodes = map[MatterCode]bool{
	CodeEd25519N: true,
}

// TransferableCodes are Matter codes for keys whose authority can rotate.
var TransferableCodes = map[MatterCode]bool{
	CodeEd25519: true,
}

// DigestCodes identifies which Matter codes are digest algorithms (as
// opposed to keys or signatures), used by Saider/Nexter/Prefixer.
var DigestCodes = map[MatterCode]bool{
	CodeBlake3_256: true,
	CodeBlake2b256: true,
	CodeSHA3_256:   true,
	CodeSHA2_256:   true,
}

// IndexerCode identifies the semantic type of an attached-signature index
// value.
type IndexerCode string

const (
	// IdxEd25519Sig is a single-index Ed25519 signature: the index names the
	// signer's position in the *current* signing key list.
	IdxEd25519Sig IndexerCode = "A"
	// IdxEd25519SigBig is the dual-index variant: in addition to the current
	// key index, it carries the signer's position in the *other* (prior or
	// next) key list, used while rotating into a partially overlapping key
	// set (SPEC_FULL supplemented feature 2).
	IdxEd25519SigBig IndexerCode = "2A"
)

type IndexerSizage struct {
	RawSize int
	Dual    bool // carries a second (ondex) index alongside the primary index
}

var indexerSizes = map[IndexerCode]IndexerSizage{
	IdxEd25519Sig:    {RawSize: 64, Dual: false},
	IdxEd25519SigBig: {RawSize: 64, Dual: true},
}

// CounterCode identifies a CESR attachment-group framing counter.
type CounterCode string

const (
	CtrControllerIdxSigs    CounterCode = "-A" // indexed controller signatures
	CtrWitnessIdxSigs       CounterCode = "-B" // indexed witness signatures
	CtrNonTransReceiptCpl   CounterCode = "-C" // non-transferable receipt couples (pre, cigar)
	CtrSealSourceCpl        CounterCode = "-E" // seal source couples (seqner, said) for delegation/anchoring
	CtrTransReceiptQuad     CounterCode = "-F" // transferable receipt quadruples (pre, seqner, said, sig)
	CtrSealSourceLastSingle CounterCode = "-H" // single prefix meaning "signed by latest est. event of this prefix"
	CtrAttachedMaterialQb64 CounterCode = "-V" // meta counter: total quadlets of attached material (pipelining)
)

// QuadletBytes is the number of raw bytes represented by one CESR quadlet
// (4 base64 characters == 3 bytes, but counters measure quadlets of the
// framed *text* group, which for our simplified wire form is 4 qb64 chars).
const QuadletBytes = 3
