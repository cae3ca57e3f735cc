// Package keritesting builds deterministic signed key events for tests: a
// seeded signer, a handful of event constructors wired through prefixing,
// nexting, and saidify the same way a real controller would, and a
// convenience signer for indexed signatures.
package keritesting

import (
	"fmt"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/eventing"
	"github.com/hello0827/keripy/nexting"
	"github.com/hello0827/keripy/prefixing"
	"github.com/hello0827/keripy/routing"
	"github.com/hello0827/keripy/saidify"
	"github.com/hello0827/keripy/serdering"
)

// Seed returns a deterministic 32-byte Ed25519 seed for index i, so tests
// are reproducible without needing real entropy.
func Seed(i byte) []byte {
	seed := make([]byte, 32)
	for j := range seed {
		seed[j] = i*31 + byte(j)
	}
	return seed
}

// NewSigner builds a deterministic Signer for index i.
func NewSigner(i byte, transferable bool) core.Signer {
	s, err := core.NewSigner(Seed(i), transferable)
	if err != nil {
		panic(fmt.Sprintf("keritesting: signer %d: %v", i, err))
	}
	return s
}

func qb64Keys(signers []core.Signer) []string {
	out := make([]string, len(signers))
	for i, s := range signers {
		out[i] = s.Verfer().Qb64()
	}
	return out
}

func signAll(serder *serdering.Serder, signers []core.Signer) []core.Indexer {
	out := make([]core.Indexer, len(signers))
	for i, s := range signers {
		ix, err := s.IndexedSign(serder.Raw(), i)
		if err != nil {
			panic(fmt.Sprintf("keritesting: sign: %v", err))
		}
		out[i] = ix
	}
	return out
}

// Inception builds a self-addressing inception event signed by signers,
// sealing a next-key commitment to nextSigners under threshold nt (ignored
// if nextSigners is empty). kt is the current signing threshold as a hex
// count string (e.g. "1", "2").
func Inception(signers []core.Signer, kt string, nextSigners []core.Signer, nt string) (*serdering.Serder, []core.Indexer, error) {
	next := ""
	if len(nextSigners) > 0 {
		th, err := core.NewTholder(nt)
		if err != nil {
			return nil, nil, err
		}
		nm, err := nexting.Commit(th, qb64Keys(nextSigners), core.CodeBlake3_256)
		if err != nil {
			return nil, nil, err
		}
		next = nm.Qb64()
	}

	ked := eventing.BuildIcpKed(eventing.IcpParams{Keys: qb64Keys(signers), Kt: kt, Next: next})
	if _, err := prefixing.Derive(ked, prefixing.MethodSelfAddressing, "", core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	if err != nil {
		return nil, nil, err
	}
	return serder, signAll(serder, signers), nil
}

// InceptionWithWitnesses builds a self-addressing inception event like
// Inception, but also declares a witness list and receipt threshold (spec
// §4.6 item 3's toad).
func InceptionWithWitnesses(signers []core.Signer, kt string, nextSigners []core.Signer, nt string, wits []core.Signer, bt string) (*serdering.Serder, []core.Indexer, error) {
	next := ""
	if len(nextSigners) > 0 {
		th, err := core.NewTholder(nt)
		if err != nil {
			return nil, nil, err
		}
		nm, err := nexting.Commit(th, qb64Keys(nextSigners), core.CodeBlake3_256)
		if err != nil {
			return nil, nil, err
		}
		next = nm.Qb64()
	}

	ked := eventing.BuildIcpKed(eventing.IcpParams{
		Keys: qb64Keys(signers),
		Kt:   kt,
		Next: next,
		Bt:   bt,
		Wits: qb64Keys(wits),
	})
	if _, err := prefixing.Derive(ked, prefixing.MethodSelfAddressing, "", core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	if err != nil {
		return nil, nil, err
	}
	return serder, signAll(serder, signers), nil
}

// WitnessReceiptCouple builds a non-transferable receipt couple: witness's
// raw (non-indexed) signature over said, paired with its prefix (spec
// §6.2's "-C" attachment group).
func WitnessReceiptCouple(witness core.Signer, said string) (eventing.Couple, error) {
	sig, err := core.NewMatter(core.CodeEd25519Sig, witness.Sign([]byte(said)))
	if err != nil {
		return eventing.Couple{}, err
	}
	return eventing.Couple{Prefix: witness.Verfer().Qb64(), Sig: sig}, nil
}

// BareNonTransferableInception builds the single-key, no-next-commitment
// inception form whose prefix is derived directly from the key.
func BareNonTransferableInception(signer core.Signer) (*serdering.Serder, []core.Indexer, error) {
	ked := eventing.BuildIcpKed(eventing.IcpParams{Keys: qb64Keys([]core.Signer{signer}), Kt: "1"})
	if _, err := prefixing.Derive(ked, prefixing.MethodBasicNonTransferable, core.CodeEd25519N, core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	if _, err := saidify.Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	if err != nil {
		return nil, nil, err
	}
	return serder, signAll(serder, []core.Signer{signer}), nil
}

// Rotation builds a rotation event for pre advancing from prior at sn,
// rotating into signers (committing nextSigners as the new next-key
// commitment) and signed by signers.
func Rotation(pre string, sn uint64, prior *serdering.Serder, signers []core.Signer, kt string, nextSigners []core.Signer, nt string) (*serdering.Serder, []core.Indexer, error) {
	next := ""
	if len(nextSigners) > 0 {
		th, err := core.NewTholder(nt)
		if err != nil {
			return nil, nil, err
		}
		nm, err := nexting.Commit(th, qb64Keys(nextSigners), core.CodeBlake3_256)
		if err != nil {
			return nil, nil, err
		}
		next = nm.Qb64()
	}

	ked := eventing.BuildRotKed(eventing.RotParams{
		Pre:   pre,
		Sn:    sn,
		Prior: prior.Said(),
		Keys:  qb64Keys(signers),
		Kt:    kt,
		Next:  next,
	})
	if _, err := saidify.Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	if err != nil {
		return nil, nil, err
	}
	return serder, signAll(serder, signers), nil
}

// EndRoleAdd builds a /end/role/add reply authorizing eid for role on
// cid's behalf, signed by signer (cid's own current key).
func EndRoleAdd(cid, role, eid, dt string, signer core.Signer) (*serdering.Serder, []core.Indexer, error) {
	return buildReply(routing.RouteEndRoleAdd, map[string]string{"cid": cid, "role": role, "eid": eid}, dt, signer)
}

// EndRoleCut builds a /end/role/cut reply revoking a prior EndRoleAdd.
func EndRoleCut(cid, role, eid, dt string, signer core.Signer) (*serdering.Serder, []core.Indexer, error) {
	return buildReply(routing.RouteEndRoleCut, map[string]string{"cid": cid, "role": role, "eid": eid}, dt, signer)
}

// LocScheme builds a /loc/scheme reply advertising a transport scheme for
// eid, signed by signer (eid's own current key).
func LocScheme(eid, scheme, url, dt string, signer core.Signer) (*serdering.Serder, []core.Indexer, error) {
	return buildReply(routing.RouteLocScheme, map[string]string{"eid": eid, "scheme": scheme, "url": url}, dt, signer)
}

func buildReply(route routing.Route, fields map[string]string, dt string, signer core.Signer) (*serdering.Serder, []core.Indexer, error) {
	payload := serdering.NewKed()
	for _, k := range []string{"cid", "role", "eid", "scheme", "url"} {
		if v, ok := fields[k]; ok {
			payload.Set(k, v)
		}
	}
	ked := routing.BuildRpyKed(routing.RpyParams{Dt: dt, Route: route, Payload: payload})
	if _, err := saidify.Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	if err != nil {
		return nil, nil, err
	}
	return serder, signAll(serder, []core.Signer{signer}), nil
}

// Interaction builds an interaction event anchoring seals, signed by the
// identifier's current signers.
func Interaction(pre string, sn uint64, prior *serdering.Serder, signers []core.Signer, seals []any) (*serdering.Serder, []core.Indexer, error) {
	ked := eventing.BuildIxnKed(eventing.IxnParams{Pre: pre, Sn: sn, Prior: prior.Said(), Seals: seals})
	if _, err := saidify.Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	if err != nil {
		return nil, nil, err
	}
	return serder, signAll(serder, signers), nil
}
