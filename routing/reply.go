package routing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// RpyParams is the material needed to build a reply event mapping.
type RpyParams struct {
	Dt      string // ISO-8601 datetime, e.g. "2021-01-01T00:00:00.000000+00:00"
	Route   Route
	Payload *serdering.Ked // the "a" field: route-specific data (cid/role/eid or eid/scheme)
}

// BuildRpyKed constructs the field mapping for a reply event, in field
// order v,t,d,dt,r,a.
func BuildRpyKed(p RpyParams) *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", "")
	k.Set("t", "rpy")
	k.Set("d", "")
	k.Set("dt", p.Dt)
	k.Set("r", string(p.Route))
	k.Set("a", p.Payload)
	return k
}

// KeyResolver looks up an authorizer's current signing keys and threshold
// by prefix, so Reply can verify a reply without owning Kever state itself.
// eventing.Kevery.Kever plus Kever.Verfers/.Tholder satisfies this shape.
type KeyResolver func(pre string) (verfers []core.Matter, tholder core.Tholder, ok bool)

// ReplyConfig is the material needed to construct a Reply store.
type ReplyConfig struct {
	Store    storing.Store
	Logger   *zap.Logger
	Resolver KeyResolver
}

func DefaultReplyConfig(store storing.Store, resolver KeyResolver) ReplyConfig {
	return ReplyConfig{Store: store, Logger: zap.NewNop(), Resolver: resolver}
}

// Reply is the latest-datetime-wins reply store (spec §4.8): accepted rpy
// records are indexed by their route's natural key rather than their own
// SAID, so a later reply on the same natural key supersedes an earlier one.
type Reply struct {
	cfg ReplyConfig
}

func NewReply(cfg ReplyConfig) *Reply {
	return &Reply{cfg: cfg}
}

var (
	ErrUnverifiedAuthorizer = fmt.Errorf("routing: authorizer's current keys are not known")
	ErrStaleReply           = fmt.Errorf("routing: reply datetime is not strictly newer than the prior record")
)

func verifySignatures(verfers []core.Matter, th core.Tholder, sigers []core.Indexer, msg []byte) (map[int]bool, error) {
	signed := make(map[int]bool, len(sigers))
	for _, siger := range sigers {
		idx := siger.Index()
		if idx < 0 || idx >= len(verfers) {
			return nil, fmt.Errorf("routing: signature index %d out of range", idx)
		}
		if signed[idx] {
			continue
		}
		if !core.VerifyIndexed(verfers, siger, msg) {
			return nil, fmt.Errorf("routing: signature at index %d does not verify", idx)
		}
		signed[idx] = true
	}
	if !th.Satisfied(signed) {
		return signed, fmt.Errorf("routing: signature threshold not met")
	}
	return signed, nil
}

// authorizerOf returns the prefix whose keys must have signed this route's
// reply: the controller (cid) for /end/role/*, the endpoint identifier
// (eid) itself for /loc/scheme.
func authorizerOf(route Route, payload *serdering.Ked) (string, error) {
	switch route {
	case RouteEndRoleAdd, RouteEndRoleCut:
		cid := payload.GetString("cid")
		if cid == "" {
			return "", fmt.Errorf("routing: %s payload missing cid", route)
		}
		return cid, nil
	case RouteLocScheme:
		eid := payload.GetString("eid")
		if eid == "" {
			return "", fmt.Errorf("routing: %s payload missing eid", route)
		}
		return eid, nil
	default:
		return "", fmt.Errorf("routing: unrecognized route %q", route)
	}
}

func payloadOf(serder *serdering.Serder) (*serdering.Ked, error) {
	a, ok := serder.Ked().Get("a")
	if !ok {
		return nil, fmt.Errorf("routing: reply missing \"a\" payload")
	}
	payload, ok := a.(*serdering.Ked)
	if !ok {
		return nil, fmt.Errorf("routing: reply \"a\" payload is not a mapping")
	}
	return payload, nil
}

// Upsert applies the 5-step reply acceptance rule (spec §4.8):
//  1. verify signatures against the authorizer's current keys;
//  2. accept if there is no prior record at this natural key;
//  3. replace and clean up prior artifacts if the new dt is strictly later;
//  4. drop if dt is not strictly later than the prior record;
//  5. escrow under the route base if the authorizer's KEL is not yet known.
func (r *Reply) Upsert(serder *serdering.Serder, sigers []core.Indexer) error {
	if serder.Ked().GetString("t") != "rpy" {
		return fmt.Errorf("routing: not a reply event")
	}
	route := Route(serder.Ked().GetString("r"))
	payload, err := payloadOf(serder)
	if err != nil {
		return err
	}
	nk, err := NaturalKey(route, payload)
	if err != nil {
		return err
	}
	authorizer, err := authorizerOf(route, payload)
	if err != nil {
		return err
	}

	verfers, tholder, ok := r.cfg.Resolver(authorizer)
	if !ok {
		if escErr := r.escrow(route, nk, serder, sigers); escErr != nil {
			return escErr
		}
		return fmt.Errorf("%w: %s", ErrUnverifiedAuthorizer, authorizer)
	}
	if _, err := verifySignatures(verfers, tholder, sigers, serder.Raw()); err != nil {
		return err
	}

	priorDt, hasPrior, err := r.cfg.Store.SubDB(storing.SubSdts).Get(context.Background(), nk)
	if err != nil {
		return err
	}
	dt := serder.Ked().GetString("dt")
	if hasPrior && dt <= string(priorDt) {
		return fmt.Errorf("%w: %s <= %s", ErrStaleReply, dt, string(priorDt))
	}

	if err := r.store(route, nk, serder, sigers); err != nil {
		return err
	}
	if r.cfg.Logger != nil {
		r.cfg.Logger.Debug("reply accepted", zap.String("route", string(route)), zap.String("dt", dt))
	}
	return nil
}

func (r *Reply) store(route Route, nk []byte, serder *serdering.Serder, sigers []core.Indexer) error {
	db := r.cfg.Store.SubDB
	if err := db(storing.SubRpys).Put(context.Background(), nk, serder.Raw()); err != nil {
		return err
	}
	if err := db(storing.SubSdts).Put(context.Background(), nk, []byte(serder.Ked().GetString("dt"))); err != nil {
		return err
	}
	if len(sigers) > 0 {
		if err := db(storing.SubScgs).Put(context.Background(), nk, []byte(sigers[0].Qb64())); err != nil {
			return err
		}
		if err := db(storing.SubSsgs).Put(context.Background(), nk, []byte(sigers[0].Qb64())); err != nil {
			return err
		}
	}

	switch route {
	case RouteEndRoleAdd:
		return db(storing.SubEnds).Put(context.Background(), nk, serder.Raw())
	case RouteEndRoleCut:
		return db(storing.SubEnds).Delete(context.Background(), nk)
	case RouteLocScheme:
		return db(storing.SubLocs).Put(context.Background(), nk, serder.Raw())
	default:
		return nil
	}
}

func (r *Reply) escrow(route Route, nk []byte, serder *serdering.Serder, sigers []core.Indexer) error {
	data, err := encodeEscrowEntry(serder, sigers)
	if err != nil {
		return err
	}
	key := storing.NaturalKey(routeBase(route), string(nk))
	if err := r.cfg.Store.SubDB(storing.SubRpes).Put(context.Background(), key, data); err != nil {
		return err
	}
	switch route {
	case RouteEndRoleAdd, RouteEndRoleCut:
		return r.cfg.Store.SubDB(storing.SubEans).Put(context.Background(), key, data)
	case RouteLocScheme:
		return r.cfg.Store.SubDB(storing.SubLans).Put(context.Background(), key, data)
	}
	return nil
}
