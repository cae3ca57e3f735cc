package eventing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/nexting"
	"github.com/hello0827/keripy/prefixing"
	"github.com/hello0827/keripy/saidify"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// Escrow-triggering sentinels. Kever.Update/NewKever return these (wrapped
// with fmt.Errorf %w) instead of ErrValidation when the failure means "not
// enough evidence yet", so Kevery can tell a permanent rejection from a
// reason to escrow.
var (
	ErrPartiallySigned = fmt.Errorf("signature threshold not yet met")
	ErrOutOfOrder      = fmt.Errorf("prior event not found")
)

// Kever is a per-identifier key-state machine. It exclusively owns its own
// evolving fields; the underlying Store is shared with every other Kever
// (spec §3 "Ownership").
type Kever struct {
	mu  sync.Mutex
	cfg KeverConfig

	pre          string
	sn           uint64
	fn           uint64
	serder       *serdering.Serder
	verfers      []core.Matter
	tholder      core.Tholder
	nexter       core.Matter // zero value (Code() == "") means no commitment
	wits         []string
	toad         int
	estOnly      bool
	transferable bool
	delegator    string
	abandoned    bool
	lastEst      string // said of the most recent establishment event (icp/rot/dip/drt)
}

// keriDtFormat is the KERI ISO-8601 microsecond datetime layout, e.g.
// "2021-01-01T00:00:00.000000+00:00".
const keriDtFormat = "2006-01-02T15:04:05.000000-07:00"

// Pre returns the identifier prefix this Kever tracks.
func (kv *Kever) Pre() string { return kv.pre }

// Sn returns the sequence number of the last accepted event.
func (kv *Kever) Sn() uint64 { return kv.sn }

// Fn returns the first-seen ordinal the next newly first-seen event will be
// given, which equals the number of events first-seen so far.
func (kv *Kever) Fn() uint64 { return kv.fn }

// Serder returns the last accepted event.
func (kv *Kever) Serder() *serdering.Serder { return kv.serder }

// Verfers returns the current signing keys.
func (kv *Kever) Verfers() []core.Matter { return append([]core.Matter{}, kv.verfers...) }

// Tholder returns the current signing threshold.
func (kv *Kever) Tholder() core.Tholder { return kv.tholder }

// Wits returns the current witness prefix list.
func (kv *Kever) Wits() []string { return append([]string{}, kv.wits...) }

// Toad returns the current witness receipt threshold.
func (kv *Kever) Toad() int { return kv.toad }

// isWitness reports whether pre is a member of the current witness set.
func (kv *Kever) isWitness(pre string) bool {
	for _, w := range kv.wits {
		if w == pre {
			return true
		}
	}
	return false
}

// Abandoned reports whether this identifier accepted a rotation with an
// empty next-key commitment; no further events are accepted once true.
func (kv *Kever) Abandoned() bool { return kv.abandoned }

func stringSlice(v any, ok bool) []string {
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseHexUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

// detectMethod infers a Prefixer derivation method by inspecting the code of
// the prefix itself: a digest code means self-addressing, a key code means
// basic (transferable or non-transferable per the code).
func detectMethod(pre string) (prefixing.Method, error) {
	m, err := core.MatterFromQb64(pre)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	switch {
	case m.IsDigest():
		return prefixing.MethodSelfAddressing, nil
	case m.IsNonTransferable():
		return prefixing.MethodBasicNonTransferable, nil
	case m.IsTransferable():
		return prefixing.MethodBasicTransferable, nil
	default:
		return 0, fmt.Errorf("%w: prefix code %q is neither digest nor key", ErrDerivation, m.Code())
	}
}

// verifySignatures checks sigers against verfers/msg and returns the set of
// signer indices that verified, or an error for any structurally invalid
// signature (duplicate index, index out of range, signature that does not
// verify at all). It does not evaluate th; callers check th.Satisfied on
// the returned set.
func verifySignatures(verfers []core.Matter, th core.Tholder, sigers []core.Indexer, msg []byte) (map[int]bool, error) {
	signed := map[int]bool{}
	for _, siger := range sigers {
		if siger.Index() < 0 || siger.Index() >= len(verfers) {
			return nil, fmt.Errorf("%w: signature index %d out of range", ErrValidation, siger.Index())
		}
		if signed[siger.Index()] {
			return nil, fmt.Errorf("%w: duplicate signature index %d", ErrValidation, siger.Index())
		}
		if !core.VerifyIndexed(verfers, siger, msg) {
			return nil, fmt.Errorf("%w: signature at index %d does not verify", ErrValidation, siger.Index())
		}
		signed[siger.Index()] = true
	}
	return signed, nil
}

// NewKever constructs a Kever from an inception (icp) or delegated
// inception (dip) event. Delegated inceptions are accepted here at the
// signature layer; the delegator anchor check (spec §4.6 item 4) is the
// caller's (Kevery's) responsibility, since it requires the delegator's
// Kever, which this constructor does not have.
func NewKever(cfg KeverConfig, serder *serdering.Serder, sigers []core.Indexer) (*Kever, error) {
	ked := serder.Ked()
	t := EventType(ked.GetString("t"))
	if t != EventIcp && t != EventDip {
		return nil, fmt.Errorf("%w: NewKever requires icp or dip, got %q", ErrValidation, t)
	}
	if serder.Sn() != 0 {
		return nil, fmt.Errorf("%w: inception sn must be 0, got %d", ErrValidation, serder.Sn())
	}

	keys := stringSlice(ked.Get("k"))
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: inception has no signing keys", ErrValidation)
	}
	verfers := make([]core.Matter, 0, len(keys))
	for i, key := range keys {
		m, err := core.MatterFromQb64(key)
		if err != nil {
			return nil, fmt.Errorf("%w: signing key %d: %v", ErrValidation, i, err)
		}
		verfers = append(verfers, m)
	}

	ktRaw, _ := ked.Get("kt")
	th, err := core.NewTholder(ktRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: threshold: %v", ErrValidation, err)
	}

	wits := stringSlice(ked.Get("b"))
	btRaw, err := parseHexUint(ked.GetString("bt"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad bt: %v", ErrValidation, err)
	}

	nonTransferable := len(verfers) == 1 && verfers[0].IsNonTransferable()
	if nonTransferable {
		if ked.GetString("n") != "" {
			return nil, fmt.Errorf("%w: non-transferable inception must have empty n", ErrValidation)
		}
		if len(wits) != 0 {
			return nil, fmt.Errorf("%w: non-transferable inception must have no witnesses", ErrValidation)
		}
		if seals, ok := ked.Get("a"); ok {
			if list, ok := seals.([]any); ok && len(list) != 0 {
				return nil, fmt.Errorf("%w: non-transferable inception must have no seals", ErrValidation)
			}
		}
	}

	method, err := detectMethod(serder.Pre())
	if err != nil {
		return nil, err
	}
	ok, err := prefixing.Verify(ked, method, verfers[0].Code(), cfg.DigestCode, serder.Kind())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: prefix does not match declared derivation", ErrDerivation)
	}

	signed, err := verifySignatures(verfers, th, sigers, serder.Raw())
	if err != nil {
		return nil, err
	}
	if !th.Satisfied(signed) {
		return nil, fmt.Errorf("%w: have %d of threshold %s", ErrPartiallySigned, len(signed), th.String())
	}

	var nexter core.Matter
	if n := ked.GetString("n"); n != "" {
		nexter, err = core.MatterFromQb64(n)
		if err != nil {
			return nil, fmt.Errorf("%w: bad next commitment: %v", ErrValidation, err)
		}
	}

	estOnly := false
	for _, c := range stringSlice(ked.Get("c")) {
		if c == "EO" {
			estOnly = true
		}
	}

	kv := &Kever{
		cfg:          cfg,
		pre:          serder.Pre(),
		sn:           0,
		serder:       serder,
		verfers:      verfers,
		tholder:      th,
		nexter:       nexter,
		wits:         wits,
		toad:         int(btRaw),
		estOnly:      estOnly,
		transferable: !nonTransferable,
		delegator:    ked.GetString("di"),
		lastEst:      serder.Said(),
	}
	if err := kv.persist(); err != nil {
		return nil, err
	}
	return kv, nil
}

// Update advances kv with a rotation (rot/drt) or interaction (ixn) event.
// Delegated rotations' anchor check is the caller's responsibility, same as
// NewKever for dip.
func (kv *Kever) Update(serder *serdering.Serder, sigers []core.Indexer) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.abandoned {
		return ErrAbandoned
	}
	ked := serder.Ked()
	t := EventType(ked.GetString("t"))
	switch t {
	case EventRot, EventDrt:
		return kv.applyRotation(serder, sigers)
	case EventIxn:
		return kv.applyInteraction(serder, sigers)
	default:
		return fmt.Errorf("%w: Kever.Update does not accept %q", ErrUnknownEventType, t)
	}
}

func (kv *Kever) applyRotation(serder *serdering.Serder, sigers []core.Indexer) error {
	ked := serder.Ked()

	recovery := serder.Sn() <= kv.sn
	if !recovery && serder.Sn() != kv.sn+1 {
		return fmt.Errorf("%w: rotation sn %d is not prior+1 (%d) nor a recovery point", ErrOutOfOrder, serder.Sn(), kv.sn+1)
	}
	if !recovery && ked.GetString("p") != kv.serder.Said() {
		return fmt.Errorf("%w: rotation p %q does not match prior said %q", ErrValidation, ked.GetString("p"), kv.serder.Said())
	}

	keys := stringSlice(ked.Get("k"))
	if len(keys) == 0 {
		return fmt.Errorf("%w: rotation has no signing keys", ErrValidation)
	}
	ktRaw, _ := ked.Get("kt")
	newTh, err := core.NewTholder(ktRaw)
	if err != nil {
		return fmt.Errorf("%w: threshold: %v", ErrValidation, err)
	}

	if kv.nexter.Code() == "" {
		return fmt.Errorf("%w: no prior next commitment to rotate into (abandoned or non-transferable)", ErrValidation)
	}
	ok, err := nexting.Verify(kv.nexter, newTh, keys, kv.cfg.DigestCode)
	if err != nil {
		return fmt.Errorf("%w: next commitment check: %v", ErrValidation, err)
	}
	if !ok {
		return fmt.Errorf("%w: new keys/threshold do not match prior next commitment", ErrValidation)
	}

	newVerfers := make([]core.Matter, 0, len(keys))
	for i, key := range keys {
		m, err := core.MatterFromQb64(key)
		if err != nil {
			return fmt.Errorf("%w: signing key %d: %v", ErrValidation, i, err)
		}
		newVerfers = append(newVerfers, m)
	}

	signed, err := verifySignatures(newVerfers, newTh, sigers, serder.Raw())
	if err != nil {
		return err
	}
	if !newTh.Satisfied(signed) {
		return fmt.Errorf("%w: have %d of threshold %s", ErrPartiallySigned, len(signed), newTh.String())
	}

	newWits, err := applyWitnessDelta(kv.wits, stringSlice(ked.Get("br")), stringSlice(ked.Get("ba")))
	if err != nil {
		return err
	}

	var newNexter core.Matter
	if n := ked.GetString("n"); n != "" {
		newNexter, err = core.MatterFromQb64(n)
		if err != nil {
			return fmt.Errorf("%w: bad next commitment: %v", ErrValidation, err)
		}
	}
	btRaw, err := parseHexUint(ked.GetString("bt"))
	if err != nil {
		return fmt.Errorf("%w: bad bt: %v", ErrValidation, err)
	}

	if recovery {
		kv.cfg.Logger.Warn("recovery rotation accepted; later events at higher sn are now likely-duplicitous",
			zap.String("pre", kv.pre), zap.Uint64("sn", serder.Sn()))
	}

	kv.sn = serder.Sn()
	kv.serder = serder
	kv.verfers = newVerfers
	kv.tholder = newTh
	kv.wits = newWits
	kv.toad = int(btRaw)
	kv.nexter = newNexter
	kv.lastEst = serder.Said()
	if newNexter.Code() == "" {
		kv.abandoned = true
	}
	return kv.persist()
}

func (kv *Kever) applyInteraction(serder *serdering.Serder, sigers []core.Indexer) error {
	if kv.estOnly {
		return fmt.Errorf("%w: identifier is establishment-only, ixn rejected", ErrValidation)
	}
	ked := serder.Ked()
	if serder.Sn() != kv.sn+1 {
		return fmt.Errorf("%w: interaction sn %d is not prior+1 (%d)", ErrOutOfOrder, serder.Sn(), kv.sn+1)
	}
	if ked.GetString("p") != kv.serder.Said() {
		return fmt.Errorf("%w: interaction p %q does not match prior said %q", ErrValidation, ked.GetString("p"), kv.serder.Said())
	}

	signed, err := verifySignatures(kv.verfers, kv.tholder, sigers, serder.Raw())
	if err != nil {
		return err
	}
	if !kv.tholder.Satisfied(signed) {
		return fmt.Errorf("%w: have %d of threshold %s", ErrPartiallySigned, len(signed), kv.tholder.String())
	}

	kv.sn = serder.Sn()
	kv.serder = serder
	return kv.persist()
}

// applyWitnessDelta applies cuts then adds to the current witness list, per
// spec §4.6 item 2 ("apply br (cuts) then ba (adds)"). A cut of a witness
// not in the current list, or an add of a witness already present after the
// cuts, is rejected with ErrValidation.
func applyWitnessDelta(current, cuts, adds []string) ([]string, error) {
	present := map[string]bool{}
	for _, w := range current {
		present[w] = true
	}
	cutSet := map[string]bool{}
	for _, c := range cuts {
		if !present[c] {
			return nil, fmt.Errorf("%w: cut witness %s is not in the current witness list", ErrValidation, c)
		}
		cutSet[c] = true
	}
	next := make([]string, 0, len(current)+len(adds))
	for _, w := range current {
		if !cutSet[w] {
			next = append(next, w)
		}
	}
	seen := map[string]bool{}
	for _, w := range next {
		seen[w] = true
	}
	for _, a := range adds {
		if seen[a] {
			return nil, fmt.Errorf("%w: added witness %s is already present", ErrValidation, a)
		}
		next = append(next, a)
		seen[a] = true
	}
	return next, nil
}

// persist writes the accepted event and its resulting state to the store:
// KEL index, raw event bytes, first-seen index, and the key-state snapshot.
// Per spec §5's atomicity requirement, a real multi-key store would stage
// these writes behind a commit marker; MemStore's single-mutex SubDBs make
// each individual Put atomic, and this method performs them in an order
// (kels last) such that a crash before the last write leaves fn/evts
// populated but the event not yet visible as "current", which is safe to
// replay.
func (kv *Kever) persist() error {
	ctx := context.Background()
	said := kv.serder.Said()

	if err := kv.cfg.Store.SubDB(storing.SubEvts).Put(ctx, storing.SaidKey(kv.pre, said), kv.serder.Raw()); err != nil {
		return fmt.Errorf("eventing: persist event: %w", err)
	}

	inserted, err := kv.cfg.Store.SubDB(storing.SubFons).PutFirst(ctx, storing.SaidKey(kv.pre, said), []byte(strconv.FormatUint(kv.fn, 10)))
	if err != nil {
		return fmt.Errorf("eventing: persist first-seen: %w", err)
	}
	if inserted {
		if err := kv.cfg.Store.SubDB(storing.SubFels).Put(ctx, storing.FnKey(kv.pre, kv.fn), []byte(said)); err != nil {
			return fmt.Errorf("eventing: persist fels: %w", err)
		}
		kv.fn++
	}

	state, err := kv.snapshot()
	if err != nil {
		return err
	}
	if err := kv.cfg.Store.SubDB(storing.SubStates).Put(ctx, []byte(kv.pre), state); err != nil {
		return fmt.Errorf("eventing: persist state: %w", err)
	}

	if err := kv.cfg.Store.SubDB(storing.SubKELs).Put(ctx, storing.SnKey(kv.pre, kv.sn), []byte(said)); err != nil {
		return fmt.Errorf("eventing: persist kel: %w", err)
	}
	return nil
}

// snapshot serializes the current key-state as a ksn-shaped Ked, always
// encoded as JSON, with its own SAID sealed the same way an
// ordinary event's is (spec §6.1's ksn field list: v,i,s,p,d,f,dt,et,kt,k,n,
// bt,b,c,ee,di).
func (kv *Kever) snapshot() ([]byte, error) {
	k := serdering.NewKed()
	k.Set("v", "")
	k.Set("i", kv.pre)
	k.Set("s", fmt.Sprintf("%x", kv.sn))
	k.Set("p", kv.priorSaid())
	k.Set("d", "")
	k.Set("f", fmt.Sprintf("%x", kv.fn))
	k.Set("dt", time.Now().UTC().Format(keriDtFormat))
	k.Set("et", string(eventTypeOf(kv.serder)))
	k.Set("kt", kv.tholder.String())
	k.Set("k", toAny(keysOf(kv.verfers)))
	if kv.nexter.Code() != "" {
		k.Set("n", kv.nexter.Qb64())
	} else {
		k.Set("n", "")
	}
	k.Set("bt", fmt.Sprintf("%x", kv.toad))
	k.Set("b", toAny(kv.wits))
	if kv.estOnly {
		k.Set("c", toAny([]string{"EO"}))
	} else {
		k.Set("c", toAny(nil))
	}
	k.Set("ee", kv.lastEst)
	k.Set("di", kv.delegator)

	if _, err := saidify.Saidify(k, "d", kv.cfg.DigestCode, serdering.KindJSON); err != nil {
		return nil, fmt.Errorf("eventing: ksn snapshot: %w", err)
	}
	sr, err := serdering.NewSerder(k, serdering.KindJSON)
	if err != nil {
		return nil, fmt.Errorf("eventing: ksn snapshot: %w", err)
	}
	return sr.Raw(), nil
}

func (kv *Kever) priorSaid() string {
	if kv.sn == 0 {
		return ""
	}
	return kv.serder.Ked().GetString("p")
}

func eventTypeOf(serder *serdering.Serder) EventType {
	return EventType(serder.Ked().GetString("t"))
}

func keysOf(verfers []core.Matter) []string {
	out := make([]string, len(verfers))
	for i, m := range verfers {
		out[i] = m.Qb64()
	}
	return out
}
