// Package parsing turns a wire stream into a Serder plus its attached CESR
// material: a message is the event's declared-size bytes followed by zero
// or more attachment groups, each led by a Counter (spec §6.2).
package parsing

import (
	"fmt"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/eventing"
)

// SealSource is a (seqner, said) pair: the sn and digest of the
// establishment event a delegated or anchoring event's seal source couple
// points back to (the "-E" attachment group).
type SealSource struct {
	Sn   uint64
	Said string
}

// Attachments is everything a message's attachment region decoded to,
// across all CESR attachment groups spec §6.2 names.
type Attachments struct {
	ControllerSigs []core.Indexer      // -A
	WitnessSigs    []core.Indexer      // -B
	Couples        []eventing.Couple   // -C non-transferable receipt couples
	Quadruples     []eventing.Quadruple // -F transferable receipt quadruples
	SealSources    []SealSource        // -E source couples (delegation/anchoring)
	SealSourceLast string              // -H prefix: "signed by latest est. event of this prefix"
}

// parseIndexedSigs reads n indexed signatures off the head of data,
// returning them plus how many characters were consumed.
func parseIndexedSigs(data string, n int) ([]core.Indexer, int, error) {
	out := make([]core.Indexer, 0, n)
	consumed := 0
	for i := 0; i < n; i++ {
		ix, err := core.IndexerFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: indexed signature %d: %w", i, err)
		}
		consumed += len(ix.Qb64())
		out = append(out, ix)
	}
	return out, consumed, nil
}

// parseCouples reads n (prefix, cigar) non-transferable receipt couples.
func parseCouples(data string, n int) ([]eventing.Couple, int, error) {
	out := make([]eventing.Couple, 0, n)
	consumed := 0
	for i := 0; i < n; i++ {
		pre, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: receipt couple %d prefix: %w", i, err)
		}
		consumed += len(pre.Qb64())
		sig, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: receipt couple %d signature: %w", i, err)
		}
		consumed += len(sig.Qb64())
		out = append(out, eventing.Couple{Prefix: pre.Qb64(), Sig: sig})
	}
	return out, consumed, nil
}

// parseQuadruples reads n (prefix, seqner, said, signature) transferable
// receipt quadruples. The signature is read as a plain, non-indexed Matter
// signature; an indexed-signature encoding in that position is not decoded
// as one.
func parseQuadruples(data string, n int) ([]eventing.Quadruple, int, error) {
	out := make([]eventing.Quadruple, 0, n)
	consumed := 0
	for i := 0; i < n; i++ {
		pre, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: receipt quadruple %d prefix: %w", i, err)
		}
		consumed += len(pre.Qb64())
		seqner, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: receipt quadruple %d seqner: %w", i, err)
		}
		consumed += len(seqner.Qb64())
		said, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: receipt quadruple %d said: %w", i, err)
		}
		consumed += len(said.Qb64())
		sig, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: receipt quadruple %d signature: %w", i, err)
		}
		consumed += len(sig.Qb64())
		out = append(out, eventing.Quadruple{
			Prefix: pre.Qb64(),
			Sn:     seqnerUint(seqner),
			Said:   said.Qb64(),
			Sig:    sig,
		})
	}
	return out, consumed, nil
}

// parseSealSources reads n (seqner, said) source couples.
func parseSealSources(data string, n int) ([]SealSource, int, error) {
	out := make([]SealSource, 0, n)
	consumed := 0
	for i := 0; i < n; i++ {
		seqner, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: seal source %d seqner: %w", i, err)
		}
		consumed += len(seqner.Qb64())
		said, err := core.MatterFromQb64(data[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("parsing: seal source %d said: %w", i, err)
		}
		consumed += len(said.Qb64())
		out = append(out, SealSource{Sn: seqnerUint(seqner), Said: said.Qb64()})
	}
	return out, consumed, nil
}

func seqnerUint(m core.Matter) uint64 {
	var n uint64
	for _, b := range m.Raw() {
		n = n<<8 | uint64(b)
	}
	return n
}

// NewSeqner encodes sn as the Matter used to carry sequence numbers in
// "-E"/"-F" attachment groups.
func NewSeqner(sn uint64) (core.Matter, error) {
	raw := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		raw[i] = byte(sn)
		sn >>= 8
	}
	return core.NewMatter(core.CodeNumber, raw)
}
