package eventing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// Handler processes a message type Kevery has no built-in opinion about
// (spec §4.7's "anything Non-goals exclude the core from understanding,
// such as credential issuance exn payloads, is handed to a pluggable
// handler"). It receives the parsed Serder; what it does with it is the
// embedder's business.
type Handler func(serder *serdering.Serder) error

// HandlerTable dispatches by event type for messages Kevery itself does not
// interpret.
type HandlerTable map[EventType]Handler

// Kevery is the stream-level dispatcher: it owns a table of Kevers (one per
// identifier prefix it has seen an inception for) and routes every parsed
// message to the right verification path, per spec §4.7.
type Kevery struct {
	cfg    KeveryConfig
	mu     sync.RWMutex
	kevers map[string]*Kever
	now    func() int64 // overridable clock, for escrow-timeout tests
}

// NewKevery constructs an empty Kevery over cfg.
func NewKevery(cfg KeveryConfig) *Kevery {
	return &Kevery{cfg: cfg, kevers: map[string]*Kever{}}
}

func (ky *Kevery) keverConfig() KeverConfig {
	return KeverConfig{Store: ky.cfg.Store, Logger: ky.cfg.Logger, DigestCode: core.CodeBlake3_256}
}

func (ky *Kevery) keverFor(pre string) (*Kever, bool) {
	ky.mu.RLock()
	defer ky.mu.RUnlock()
	kv, ok := ky.kevers[pre]
	return kv, ok
}

func (ky *Kevery) register(kv *Kever) {
	ky.mu.Lock()
	defer ky.mu.Unlock()
	ky.kevers[kv.Pre()] = kv
}

// Kever returns the tracked state machine for pre, if any.
func (ky *Kevery) Kever(pre string) (*Kever, bool) { return ky.keverFor(pre) }

// ProcessEvent dispatches a single key event (icp, rot, ixn, dip, drt) to
// the right Kever, creating one on inception. It is the heart of spec
// §4.7's per-message routing: a missing prior Kever or an unmet signature
// threshold is escrowed rather than rejected, since both conditions can
// resolve once more messages arrive.
func (ky *Kevery) ProcessEvent(serder *serdering.Serder, sigers []core.Indexer) error {
	ked := serder.Ked()
	t := EventType(ked.GetString("t"))
	pre := ked.GetString("i")

	switch t {
	case EventIcp:
		if kv, ok := ky.keverFor(pre); ok {
			if kv.Serder().Said() == serder.Said() {
				return nil // duplicate delivery of the same inception, not an error
			}
			return ky.checkDuplicity(serder, sigers)
		}
		kv, err := NewKever(ky.keverConfig(), serder, sigers)
		if err != nil {
			return ky.handleKeverError(serder, sigers, err)
		}
		ky.register(kv)
		return ky.checkWitnessReceipts(kv, serder, sigers)

	case EventDip:
		return ky.processDelegatedEvent(serder, sigers)

	case EventRot, EventIxn:
		kv, ok := ky.keverFor(pre)
		if !ok {
			if err := ky.escrow(storing.SubOoes, serder, sigers); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrOutOfOrder, pre)
		}
		priorSn := kv.Sn()
		if err := kv.Update(serder, sigers); err != nil {
			return ky.handleKeverError(serder, sigers, err)
		}
		if serder.Sn() <= priorSn {
			if err := ky.markSupersededAsDuplicitous(pre, serder.Sn()); err != nil {
				return err
			}
		}
		return ky.checkWitnessReceipts(kv, serder, sigers)

	case EventDrt:
		return ky.processDelegatedEvent(serder, sigers)

	default:
		return fmt.Errorf("%w: %q is not a key event", ErrUnknownEventType, t)
	}
}

// handleKeverError routes a Kever rejection to the right escrow category,
// or returns it unchanged if it is a hard validation failure that escrowing
// cannot resolve.
func (ky *Kevery) handleKeverError(serder *serdering.Serder, sigers []core.Indexer, err error) error {
	switch {
	case errors.Is(err, ErrPartiallySigned):
		if e := ky.escrow(storing.SubPses, serder, sigers); e != nil {
			return e
		}
		return err
	case errors.Is(err, ErrOutOfOrder):
		if e := ky.escrow(storing.SubOoes, serder, sigers); e != nil {
			return e
		}
		return err
	default:
		return err
	}
}

// ProcessMessages processes a batch of parsed (Serder, signatures) pairs in
// order, collecting every error rather than stopping at the first one,
// since later messages in a batch are typically unrelated identifiers.
func (ky *Kevery) ProcessMessages(msgs []Message) []error {
	var errs []error
	for _, m := range msgs {
		var err error
		switch EventType(m.Serder.Ked().GetString("t")) {
		case EventIcp, EventRot, EventIxn, EventDip, EventDrt:
			err = ky.ProcessEvent(m.Serder, m.Sigers)
		case EventRct:
			err = ky.ProcessReceipt(m.Serder, m.Couples, m.Quadruples)
		default:
			err = ky.processOther(m.Serder)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Message bundles one parsed Serder with whichever attachment kinds apply
// to its event type; only the fields relevant to Serder's "t" need be set.
type Message struct {
	Serder     *serdering.Serder
	Sigers     []core.Indexer
	Couples    []Couple
	Quadruples []Quadruple
}

// processOther routes qry/rpy/exn/fwd/ksn to the registered Handler, if
// any; the reply-routing store itself (latest-wins rpy upsert) lives in the
// routing package, which Kevery does not import, to keep this package's
// Non-goal (no credential/routing semantics) intact.
func (ky *Kevery) processOther(serder *serdering.Serder) error {
	t := EventType(serder.Ked().GetString("t"))
	h, ok := ky.cfg.Handlers[t]
	if !ok {
		return fmt.Errorf("%w: %q has no registered handler", ErrUnknownEventType, t)
	}
	return h(serder)
}
