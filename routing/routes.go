// Package routing implements the reply store: a latest-datetime-wins index
// of signed rpy records (endpoint/location metadata), keyed by each route's
// natural key rather than the record's own SAID (spec §4.8).
package routing

import (
	"fmt"

	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

// Route names the reply routes this store understands. Any other route is
// rejected: routing carries no credential or TEL semantics (the Non-goal
// this package respects).
type Route string

const (
	RouteEndRoleAdd Route = "/end/role/add"
	RouteEndRoleCut Route = "/end/role/cut"
	RouteLocScheme  Route = "/loc/scheme"
)

// NaturalKey extracts the natural key a reply's route defines it is keyed
// by: (cid, role, eid) for /end/role/*, (eid, scheme) for /loc/scheme. It is
// keyed on routeBase rather than the full route, so an add and its matching
// cut - which target the same (cid,role,eid) triple - land on the same key
// and can supersede each other by dt.
func NaturalKey(route Route, payload *serdering.Ked) ([]byte, error) {
	switch route {
	case RouteEndRoleAdd, RouteEndRoleCut:
		cid := payload.GetString("cid")
		role := payload.GetString("role")
		eid := payload.GetString("eid")
		if cid == "" || role == "" || eid == "" {
			return nil, fmt.Errorf("routing: %s payload missing cid/role/eid", route)
		}
		return storing.NaturalKey(routeBase(route), cid, role, eid), nil
	case RouteLocScheme:
		eid := payload.GetString("eid")
		scheme := payload.GetString("scheme")
		if eid == "" || scheme == "" {
			return nil, fmt.Errorf("routing: %s payload missing eid/scheme", route)
		}
		return storing.NaturalKey(routeBase(route), eid, scheme), nil
	default:
		return nil, fmt.Errorf("routing: unrecognized route %q", route)
	}
}

// routeBase returns the escrow grouping key for a route: everything up to
// (but not including) the trailing add/cut verb, so an add and its
// matching cut share one escrow bucket (spec §4.8 item 5: "escrow under
// (route-base,)").
func routeBase(route Route) string {
	switch route {
	case RouteEndRoleAdd, RouteEndRoleCut:
		return "/end/role"
	default:
		return string(route)
	}
}
