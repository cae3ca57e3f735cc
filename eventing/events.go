// Package eventing implements the Kever per-identifier state machine and the
// Kevery stream dispatcher: the verification and advancement logic that
// turns a stream of Serders and attached signatures into key event logs.
package eventing

import (
	"fmt"

	"github.com/hello0827/keripy/serdering"
)

// EventType is the "t" field of an event or message.
type EventType string

const (
	EventIcp EventType = "icp" // inception
	EventRot EventType = "rot" // rotation
	EventIxn EventType = "ixn" // interaction
	EventDip EventType = "dip" // delegated inception
	EventDrt EventType = "drt" // delegated rotation
	EventRct EventType = "rct" // receipt
	EventKsn EventType = "ksn" // key state notice
	EventQry EventType = "qry" // query
	EventRpy EventType = "rpy" // reply
	EventExn EventType = "exn" // peer exchange
	EventFwd EventType = "fwd" // forward
)

// IsEstablishment reports whether t is an establishment event type (one that
// can carry a new signing-key commitment and therefore advance a Kever's
// establishment-event lineage, as opposed to ixn which only anchors seals).
func (t EventType) IsEstablishment() bool {
	switch t {
	case EventIcp, EventRot, EventDip, EventDrt:
		return true
	}
	return false
}

// IcpParams is the material needed to build an inception (or the icp-shaped
// portion of a delegated inception) event mapping.
type IcpParams struct {
	Keys     []string // current signing keys, qb64
	Kt       string   // signing threshold, serialized (hex count or weight list)
	Next     string   // next-key commitment qb64, "" if none
	Bt       string   // witness threshold, hex
	Wits     []string // witness prefixes
	Cnfg     []string // configuration traits ("EO" for EstOnly, etc.)
	Seals    []any    // anchored seals
	Delegator string  // non-empty for dip: delegator's prefix
}

// BuildIcpKed constructs the field mapping for an inception event (or, if
// delegator is set, a delegated inception), in the normative field order
// spec §5 requires: v,t,d,i,s,kt,k,n,bt,b,c,a[,di].
func BuildIcpKed(p IcpParams) *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", "")
	t := EventIcp
	if p.Delegator != "" {
		t = EventDip
	}
	k.Set("t", string(t))
	k.Set("d", "")
	k.Set("i", "")
	k.Set("s", "0")
	k.Set("kt", p.Kt)
	k.Set("k", toAny(p.Keys))
	k.Set("n", p.Next)
	k.Set("bt", p.Bt)
	k.Set("b", toAny(p.Wits))
	k.Set("c", toAny(p.Cnfg))
	k.Set("a", sealsOrEmpty(p.Seals))
	if p.Delegator != "" {
		k.Set("di", p.Delegator)
	}
	return k
}

// RotParams is the material needed to build a rotation (or delegated
// rotation) event mapping.
type RotParams struct {
	Pre       string
	Sn        uint64
	Prior     string // said of the event this rotation points back to
	Keys      []string
	Kt        string
	Next      string
	Bt        string
	Cuts      []string // "br": witnesses removed this rotation
	Adds      []string // "ba": witnesses added this rotation
	Seals     []any
	Delegated bool
}

// BuildRotKed constructs the field mapping for a rotation event, in field
// order v,t,d,i,s,p,kt,k,n,bt,br,ba,a.
func BuildRotKed(p RotParams) *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", "")
	t := EventRot
	if p.Delegated {
		t = EventDrt
	}
	k.Set("t", string(t))
	k.Set("d", "")
	k.Set("i", p.Pre)
	k.Set("s", fmt.Sprintf("%x", p.Sn))
	k.Set("p", p.Prior)
	k.Set("kt", p.Kt)
	k.Set("k", toAny(p.Keys))
	k.Set("n", p.Next)
	k.Set("bt", p.Bt)
	k.Set("br", toAny(p.Cuts))
	k.Set("ba", toAny(p.Adds))
	k.Set("a", sealsOrEmpty(p.Seals))
	return k
}

// IxnParams is the material needed to build an interaction event mapping.
type IxnParams struct {
	Pre   string
	Sn    uint64
	Prior string
	Seals []any
}

// BuildIxnKed constructs the field mapping for an interaction event, in
// field order v,t,d,i,s,p,a.
func BuildIxnKed(p IxnParams) *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", "")
	k.Set("t", string(EventIxn))
	k.Set("d", "")
	k.Set("i", p.Pre)
	k.Set("s", fmt.Sprintf("%x", p.Sn))
	k.Set("p", p.Prior)
	k.Set("a", sealsOrEmpty(p.Seals))
	return k
}

// RctParams is the material needed to build a receipt event mapping. A
// receipt carries no signatures in its own body; those travel as attached
// CESR groups (spec §4.6 item 3, §6.2).
type RctParams struct {
	Pre string
	Sn  uint64
	Said string
}

// BuildRctKed constructs the field mapping for a receipt message, in field
// order v,t,d,i,s.
func BuildRctKed(p RctParams) *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", "")
	k.Set("t", string(EventRct))
	k.Set("d", p.Said)
	k.Set("i", p.Pre)
	k.Set("s", fmt.Sprintf("%x", p.Sn))
	return k
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func sealsOrEmpty(seals []any) []any {
	if seals == nil {
		return []any{}
	}
	return seals
}
