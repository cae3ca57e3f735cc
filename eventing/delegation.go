package eventing

import (
	"context"
	"fmt"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// seals returns the "a" field of ked as a slice of nested Keds, skipping
// any entry that is not map-shaped (a plain digest seal, which carries no
// (i, s, d) triple and so can never match a delegation anchor).
func seals(ked *serdering.Ked) []*serdering.Ked {
	raw, ok := ked.Get("a")
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []*serdering.Ked
	for _, e := range list {
		if nested, ok := e.(*serdering.Ked); ok {
			out = append(out, nested)
		}
	}
	return out
}

// isDelegatingAnchor reports whether seal anchors the delegated event
// (delegatePre, delegateSn, delegateSaid), per spec §4.6 item 4's exact
// (i, s, d) match requirement.
func isDelegatingAnchor(seal *serdering.Ked, delegatePre string, delegateSn uint64, delegateSaid string) bool {
	return seal.GetString("i") == delegatePre &&
		seal.GetString("s") == fmt.Sprintf("%x", delegateSn) &&
		seal.GetString("d") == delegateSaid
}

// findDelegationAnchor scans every event in the delegator's KEL for a seal
// anchoring the delegated event. A real embedder would narrow this with a
// seal-source couple attachment naming the exact delegator sn to check;
// absent one, this falls back to a full scan, which is correct but not
// cheap for a long-lived delegator.
func (ky *Kevery) findDelegationAnchor(delegator, delegatePre string, delegateSn uint64, delegateSaid string) (bool, error) {
	ctx := context.Background()
	found := false
	err := ky.cfg.Store.SubDB(storing.SubKELs).Range(ctx, storing.PrefixOf(delegator), func(_, value []byte) bool {
		raw, ok, gerr := ky.cfg.Store.SubDB(storing.SubEvts).Get(ctx, storing.SaidKey(delegator, string(value)))
		if gerr != nil || !ok {
			return true
		}
		serder, perr := serdering.ParseSerder(raw)
		if perr != nil {
			return true
		}
		for _, seal := range seals(serder.Ked()) {
			if isDelegatingAnchor(seal, delegatePre, delegateSn, delegateSaid) {
				found = true
				return false
			}
		}
		return true
	})
	if err != nil {
		return false, fmt.Errorf("eventing: scan delegator KEL: %w", err)
	}
	return found, nil
}

// processDelegatedEvent verifies a dip/drt's delegation anchor before
// handing it to NewKever/Update. If the delegator is unknown to this
// Kevery, or the anchor is not yet present in the delegator's KEL, the
// event is escrowed under out-of-order-delegation rather than rejected,
// since the anchor may simply not have arrived yet (spec §4.6 item 4).
func (ky *Kevery) processDelegatedEvent(serder *serdering.Serder, sigers []core.Indexer) error {
	ked := serder.Ked()
	delegator := ked.GetString("di")
	if delegator == "" {
		// drt carries no "di" of its own; the delegator is whatever the
		// delegate's existing Kever already recorded at inception.
		if kv, ok := ky.keverFor(ked.GetString("i")); ok {
			delegator = kv.delegator
		}
	}
	if delegator == "" {
		return fmt.Errorf("%w: delegated event names no delegator", ErrValidation)
	}

	anchored, err := ky.findDelegationAnchor(delegator, ked.GetString("i"), serder.Sn(), serder.Said())
	if err != nil {
		return err
	}
	if !anchored {
		if err := ky.escrow(storing.SubOodes, serder, sigers); err != nil {
			return err
		}
		return fmt.Errorf("%w", ErrMissingAnchor)
	}

	if EventType(ked.GetString("t")) == EventDip {
		kv, err := NewKever(ky.keverConfig(), serder, sigers)
		if err != nil {
			return err
		}
		ky.register(kv)
		return ky.checkWitnessReceipts(kv, serder, sigers)
	}

	kv, ok := ky.keverFor(ked.GetString("i"))
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPrefix, ked.GetString("i"))
	}
	priorSn := kv.Sn()
	if err := kv.Update(serder, sigers); err != nil {
		return err
	}
	if serder.Sn() <= priorSn {
		if err := ky.markSupersededAsDuplicitous(ked.GetString("i"), serder.Sn()); err != nil {
			return err
		}
	}
	return ky.checkWitnessReceipts(kv, serder, sigers)
}
