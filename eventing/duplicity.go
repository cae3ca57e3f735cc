package eventing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// checkDuplicity compares an incoming event against whatever this Kevery
// already has on file at the same sn. When the two saids differ, the event
// already in the KEL stays there and the incoming one is filed under ldes
// (likely-duplicitous) for an operator (or a higher-level
// duplicity-resolution policy) to inspect. This check does not verify the
// incoming event's signatures itself.
func (ky *Kevery) checkDuplicity(serder *serdering.Serder, sigers []core.Indexer) error {
	ked := serder.Ked()
	pre := ked.GetString("i")
	sn := serder.Sn()

	ctx := context.Background()
	existingSaid, ok, err := ky.cfg.Store.SubDB(storing.SubKELs).Get(ctx, storing.SnKey(pre, sn))
	if err != nil {
		return fmt.Errorf("eventing: duplicity lookup: %w", err)
	}
	if !ok || string(existingSaid) == serder.Said() {
		return nil
	}

	ky.cfg.Logger.Warn("likely duplicitous event detected",
		zap.String("pre", pre), zap.Uint64("sn", sn),
		zap.String("kept", string(existingSaid)), zap.String("incoming", serder.Said()))
	return ky.escrow(storing.SubLdes, serder, sigers)
}

// markSupersededAsDuplicitous files every KEL entry at sn greater than
// recoverySn as likely-duplicitous and removes it from the main KEL index,
// per spec §4.6 item 5 / §8 scenario 5: a recovery rotation establishes a
// new continuation from recoverySn, so whatever the old fork held past that
// point is no longer the authoritative chain.
func (ky *Kevery) markSupersededAsDuplicitous(pre string, recoverySn uint64) error {
	ctx := context.Background()
	for sn := recoverySn + 1; ; sn++ {
		key := storing.SnKey(pre, sn)
		said, ok, err := ky.cfg.Store.SubDB(storing.SubKELs).Get(ctx, key)
		if err != nil {
			return fmt.Errorf("eventing: scan superseded events: %w", err)
		}
		if !ok {
			return nil
		}
		raw, ok, err := ky.cfg.Store.SubDB(storing.SubEvts).Get(ctx, storing.SaidKey(pre, string(said)))
		if err != nil {
			return fmt.Errorf("eventing: load superseded event: %w", err)
		}
		if ok {
			if serder, perr := serdering.ParseSerder(raw); perr == nil {
				if err := ky.escrow(storing.SubLdes, serder, nil); err != nil {
					return err
				}
			}
		}
		if err := ky.cfg.Store.SubDB(storing.SubKELs).Delete(ctx, key); err != nil {
			return fmt.Errorf("eventing: clear superseded kel entry: %w", err)
		}
	}
}
