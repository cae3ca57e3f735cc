package routing

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// escrowEntry is the internal cache format for a pending reply: the raw
// rpy event plus its attached signatures, not a wire message.
type escrowEntry struct {
	Raw  []byte   `json:"raw"`
	Sigs []string `json:"sigs"`
}

func encodeEscrowEntry(serder *serdering.Serder, sigers []core.Indexer) ([]byte, error) {
	sigs := make([]string, len(sigers))
	for i, s := range sigers {
		sigs[i] = s.Qb64()
	}
	return json.Marshal(escrowEntry{Raw: serder.Raw(), Sigs: sigs})
}

func decodeEscrowEntry(data []byte) (*serdering.Serder, []core.Indexer, error) {
	var e escrowEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, nil, err
	}
	serder, err := serdering.ParseSerder(e.Raw)
	if err != nil {
		return nil, nil, err
	}
	sigers := make([]core.Indexer, len(e.Sigs))
	for i, q := range e.Sigs {
		ix, err := core.IndexerFromQb64(q)
		if err != nil {
			return nil, nil, err
		}
		sigers[i] = ix
	}
	return serder, sigers, nil
}

// ProcessEscrows reruns every pending reply in rpes. A reply that now
// verifies (its authorizer's KEL has since arrived) is upserted and
// removed from escrow; one that still fails for lack of an authorizer is
// left in place for the next call. Call this whenever new KEL material is
// seen (spec §4.8: "processEscrowReply reruns pending replies whenever new
// KEL material is seen"), not on a timer: unlike event escrows, a reply has
// no natural expiry.
func (r *Reply) ProcessEscrows() error {
	ctx := context.Background()
	db := r.cfg.Store.SubDB(storing.SubRpes)

	var done [][]byte
	err := db.Range(ctx, nil, func(key, value []byte) bool {
		serder, sigers, err := decodeEscrowEntry(value)
		if err != nil {
			if r.cfg.Logger != nil {
				r.cfg.Logger.Warn("dropping unparseable reply escrow entry", zap.Error(err))
			}
			done = append(done, append([]byte(nil), key...))
			return true
		}
		if err := r.Upsert(serder, sigers); err != nil {
			if errors.Is(err, ErrUnverifiedAuthorizer) {
				return true // still pending, try again next call
			}
			// any other failure (stale, malformed) means this entry will
			// never succeed; drop it.
			if r.cfg.Logger != nil {
				r.cfg.Logger.Debug("dropping reply escrow entry", zap.Error(err))
			}
		}
		done = append(done, append([]byte(nil), key...))
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range done {
		if err := db.Delete(ctx, k); err != nil {
			return err
		}
		if err := r.cfg.Store.SubDB(storing.SubEans).Delete(ctx, k); err != nil {
			return err
		}
		if err := r.cfg.Store.SubDB(storing.SubLans).Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
