package eventing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// escrowTimeout is how long an escrowed event is retried before it is given
// up on, per the supplemented retry-timeout policy.
const escrowTimeout = time.Hour

// escrowEntry is the envelope an escrowed event is stored under: the raw
// event bytes plus its attached indexed signatures, qb64-encoded. This is
// purely an internal cache format, not a wire message.
type escrowEntry struct {
	CorrelationID string   `json:"correlationId"`
	Raw           []byte   `json:"raw"`
	Sigs          []string `json:"sigs"`
	FirstSeen     int64    `json:"firstSeen"` // unix seconds, stamped by the caller
}

func encodeEscrowEntry(serder *serdering.Serder, sigers []core.Indexer, firstSeen int64) ([]byte, error) {
	e := escrowEntry{CorrelationID: storing.NewCorrelationID(), Raw: serder.Raw(), FirstSeen: firstSeen}
	for _, s := range sigers {
		e.Sigs = append(e.Sigs, s.Qb64())
	}
	return json.Marshal(e)
}

// decodeEscrowEntry returns the escrowed Serder, its signatures, the unix
// timestamp it first arrived, and the correlation id it was filed under (so
// a caller logging a timeout can tie it back to the original escrow write).
func decodeEscrowEntry(data []byte) (*serdering.Serder, []core.Indexer, int64, string, error) {
	var e escrowEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, nil, 0, "", fmt.Errorf("eventing: decode escrow entry: %w", err)
	}
	serder, err := serdering.ParseSerder(e.Raw)
	if err != nil {
		return nil, nil, 0, "", fmt.Errorf("eventing: decode escrowed event: %w", err)
	}
	sigers := make([]core.Indexer, 0, len(e.Sigs))
	for _, s := range e.Sigs {
		ix, err := core.IndexerFromQb64(s)
		if err != nil {
			return nil, nil, 0, "", fmt.Errorf("eventing: decode escrowed sig: %w", err)
		}
		sigers = append(sigers, ix)
	}
	return serder, sigers, e.FirstSeen, e.CorrelationID, nil
}

// escrowNow stamps an escrow entry's arrival time. A real clock would come
// from the caller; Kevery.now is overridable in tests so escrow timeout
// behavior can be exercised without sleeping.
func (ky *Kevery) escrowNow() int64 {
	if ky.now != nil {
		return ky.now()
	}
	return time.Now().Unix()
}

// escrow writes serder and its attached signatures into the named escrow
// sub-db, keyed so multiple pending events for the same prefix (e.g. several
// out-of-order sns) coexist.
func (ky *Kevery) escrow(sub string, serder *serdering.Serder, sigers []core.Indexer) error {
	entry, err := encodeEscrowEntry(serder, sigers, ky.escrowNow())
	if err != nil {
		return err
	}
	key := storing.SaidKey(serder.Pre(), serder.Said())
	if err := ky.cfg.Store.SubDB(sub).Put(context.Background(), key, entry); err != nil {
		return fmt.Errorf("eventing: escrow to %s: %w", sub, err)
	}
	return nil
}

// escrowSubs lists every escrow category in the fixed retry order spec §4.7
// requires: out-of-order, partially-signed, partially-witnessed,
// unverified-receipts, out-of-order-delegation, likely-duplicitous-report.
var escrowSubs = []string{
	storing.SubOoes,
	storing.SubPses,
	storing.SubPwes,
	storing.SubUres,
	storing.SubOodes,
	storing.SubLdes,
}

// ProcessEscrows retries every pending escrowed event once, in the fixed
// category order, dropping entries that verify or that have aged past
// escrowTimeout. It is meant to be called periodically by the embedder (a
// ticker, a cron job), not inline with message processing.
func (ky *Kevery) ProcessEscrows() error {
	ctx := context.Background()
	now := ky.escrowNow()
	for _, sub := range escrowSubs {
		db := ky.cfg.Store.SubDB(sub)
		var stale [][]byte
		err := db.Range(ctx, nil, func(key, value []byte) bool {
			serder, sigers, firstSeen, correlationID, err := decodeEscrowEntry(value)
			if err != nil {
				ky.cfg.Logger.Warn("dropping corrupt escrow entry", zap.Error(err))
				stale = append(stale, append([]byte{}, key...))
				return true
			}
			if err := ky.retryEscrowed(sub, serder, sigers); err == nil {
				stale = append(stale, append([]byte{}, key...))
			} else if now-firstSeen > int64(escrowTimeout.Seconds()) {
				ky.cfg.Logger.Warn("escrow entry timed out",
					zap.String("correlationId", correlationID), zap.Error(err))
				stale = append(stale, append([]byte{}, key...))
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := db.Delete(ctx, key); err != nil {
				return fmt.Errorf("eventing: clear escrow entry: %w", err)
			}
		}
	}
	return nil
}

// retryEscrowed re-attempts processing of one escrowed event against the
// category it was filed under.
func (ky *Kevery) retryEscrowed(sub string, serder *serdering.Serder, sigers []core.Indexer) error {
	switch sub {
	case storing.SubOoes, storing.SubPses:
		return ky.ProcessEvent(serder, sigers)
	case storing.SubOodes:
		return ky.processDelegatedEvent(serder, sigers)
	case storing.SubPwes, storing.SubUres:
		return fmt.Errorf("%w: witness receipt still outstanding", ErrUnverifiedReceipt)
	case storing.SubLdes:
		return fmt.Errorf("%w: duplicity report not resolved", ErrLikelyDuplicitous)
	default:
		return fmt.Errorf("eventing: unknown escrow category %q", sub)
	}
}
