package eventing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// Couple is a non-transferable receipt attachment: the prefix of the
// receipter (a witness, in the common case) paired with its raw signature
// over the receipted event's SAID string (spec §6.2's "-C" attachment
// group).
type Couple struct {
	Prefix string
	Sig    core.Matter // raw, non-indexed signature
}

// Quadruple is a transferable receipt attachment: the receipter's prefix,
// establishment sn, establishment event said, and signature (spec §6.2's
// "-F" attachment group). Verifying one requires the receipter's own KEL,
// to recover the signing key that was current at (prefix, sn).
type Quadruple struct {
	Prefix string
	Sn     uint64
	Said   string
	Sig    core.Matter
}

// ProcessReceipt attaches receipt couples/quadruples to the receipted
// event, per spec §4.6 item 3. It looks the receipted event up by (pre, sn)
// via the KEL index (not by trusting serder.Said() blindly), so a receipt
// for an event this Kevery never accepted is escrowed as unverified rather
// than silently recorded against a event it never verified.
func (ky *Kevery) ProcessReceipt(serder *serdering.Serder, couples []Couple, quads []Quadruple) error {
	ked := serder.Ked()
	if EventType(ked.GetString("t")) != EventRct {
		return fmt.Errorf("%w: ProcessReceipt requires rct, got %q", ErrUnknownEventType, ked.GetString("t"))
	}
	pre := ked.GetString("i")
	sn, err := parseSnField(ked.GetString("s"))
	if err != nil {
		return fmt.Errorf("%w: bad receipt sn: %v", ErrValidation, err)
	}
	said := ked.GetString("d")

	ctx := context.Background()
	kelKey := storing.SnKey(pre, sn)
	storedSaid, ok, err := ky.cfg.Store.SubDB(storing.SubKELs).Get(ctx, kelKey)
	if err != nil {
		return fmt.Errorf("eventing: lookup receipted event: %w", err)
	}
	if !ok || string(storedSaid) != said {
		return ky.escrowReceipt(serder, couples, quads)
	}

	kv, ok := ky.keverFor(pre)
	if !ok {
		return ky.escrowReceipt(serder, couples, quads)
	}

	for _, c := range couples {
		if err := ky.verifyAndStoreCouple(kv, pre, sn, said, c); err != nil {
			ky.cfg.Logger.Info("dropping unverifiable receipt couple", zap.Error(err))
			continue
		}
	}
	for _, q := range quads {
		if err := ky.verifyAndStoreQuadruple(pre, sn, said, q); err != nil {
			if errors.Is(err, ErrUnverifiedReceipt) {
				if eerr := ky.escrowReceipt(serder, nil, []Quadruple{q}); eerr != nil {
					return eerr
				}
				continue
			}
			ky.cfg.Logger.Info("dropping unverifiable receipt quadruple", zap.Error(err))
			continue
		}
	}

	return ky.graduateWitnessReceipts(kv, pre, sn, said)
}

func parseSnField(s string) (uint64, error) {
	return parseHexUint(s)
}

// verifyAndStoreCouple checks a non-transferable receipt couple's signature
// against its own claimed key (it is its own authority, being
// non-transferable), confirms the receipter is actually a tracked witness of
// kv (spec §4.6 item 3: only witness receipts count toward toad), and stores
// it under rcts.
func (ky *Kevery) verifyAndStoreCouple(kv *Kever, pre string, sn uint64, said string, c Couple) error {
	if !kv.isWitness(c.Prefix) {
		return fmt.Errorf("%w: %s is not a tracked witness of %s", ErrValidation, c.Prefix, pre)
	}
	m, err := core.MatterFromQb64(c.Prefix)
	if err != nil {
		return fmt.Errorf("%w: couple prefix: %v", ErrValidation, err)
	}
	if !core.VerifyWith(m, []byte(said), c.Sig.Raw()) {
		return fmt.Errorf("%w: couple signature does not verify", ErrValidation)
	}
	key := storing.NaturalKey(pre, fmt.Sprintf("%x", sn), c.Prefix)
	return ky.cfg.Store.SubDB(storing.SubRcts).Put(context.Background(), key, []byte(c.Sig.Qb64()))
}

// verifyAndStoreQuadruple checks a transferable receipt quadruple against
// the receipter's own established key at (Prefix, Sn, Said). Since a
// Kevery only tracks Kevers it has itself built, a quadruple from a
// receipter whose KEL it does not hold is escrowed as unverified rather
// than rejected outright, matching spec §4.6 item 3.
func (ky *Kevery) verifyAndStoreQuadruple(pre string, sn uint64, said string, q Quadruple) error {
	rkv, ok := ky.keverFor(q.Prefix)
	if !ok || rkv.Sn() != q.Sn || rkv.Serder().Said() != q.Said {
		return fmt.Errorf("%w: receipter %s not at claimed state", ErrUnverifiedReceipt, q.Prefix)
	}
	if !core.VerifyIndexed(rkv.Verfers(), mustIndexer(q.Sig), []byte(said)) {
		return fmt.Errorf("%w: quadruple signature does not verify", ErrValidation)
	}
	key := storing.NaturalKey(pre, fmt.Sprintf("%x", sn), q.Prefix, q.Said)
	return ky.cfg.Store.SubDB(storing.SubVres).Put(context.Background(), key, []byte(q.Sig.Qb64()))
}

// mustIndexer wraps a bare Matter signature at index 0, since
// VerifyIndexed expects an Indexer but a quadruple's signature is
// conceptually "by the receipter's sole current key".
func mustIndexer(m core.Matter) core.Indexer {
	ix, _ := core.NewIndexer(core.IdxEd25519Sig, m.Raw(), 0)
	return ix
}

// countReceipts returns how many distinct witness receipt couples are on
// file for (pre, sn).
func (ky *Kevery) countReceipts(pre string, sn uint64) (int, error) {
	prefix := storing.NaturalKey(pre, fmt.Sprintf("%x", sn), "")
	count := 0
	err := ky.cfg.Store.SubDB(storing.SubRcts).Range(context.Background(), prefix, func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

// graduateWitnessReceipts counts the distinct witness couples now on file
// for (pre, sn) and, once that count meets the Kever's current toad,
// removes the partially-witnessed escrow entry of the receipted event said
// (spec §4.6 item 3's "witness receipt threshold toad" graduation).
func (ky *Kevery) graduateWitnessReceipts(kv *Kever, pre string, sn uint64, said string) error {
	count, err := ky.countReceipts(pre, sn)
	if err != nil {
		return fmt.Errorf("eventing: count receipts: %w", err)
	}
	if kv.toad > 0 && count < kv.toad {
		return nil
	}
	key := storing.SaidKey(pre, said)
	return ky.cfg.Store.SubDB(storing.SubPwes).Delete(context.Background(), key)
}

// checkWitnessReceipts files serder into the partially-witnessed escrow
// (spec §4.6 item 3's "witness receipt shortage") when kv's current toad is
// not yet met by the receipts already on file for (kv.Pre(), kv.Sn()). This
// is what graduateWitnessReceipts' Delete call above resolves once enough
// receipts arrive, and what ProcessEscrows retries (and eventually times
// out) if they never do.
func (ky *Kevery) checkWitnessReceipts(kv *Kever, serder *serdering.Serder, sigers []core.Indexer) error {
	if kv.toad == 0 {
		return nil
	}
	count, err := ky.countReceipts(kv.pre, kv.sn)
	if err != nil {
		return fmt.Errorf("eventing: count receipts: %w", err)
	}
	if count >= kv.toad {
		return nil
	}
	return ky.escrow(storing.SubPwes, serder, sigers)
}

func (ky *Kevery) escrowReceipt(serder *serdering.Serder, couples []Couple, quads []Quadruple) error {
	ky.cfg.Logger.Info("escrowing unverified receipt", zap.String("pre", serder.Ked().GetString("i")))
	return ky.escrow(storing.SubUres, serder, nil)
}
