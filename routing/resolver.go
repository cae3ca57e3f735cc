package routing

import (
	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/eventing"
)

// ResolverFromKevery adapts a Kevery's tracked Kevers into a KeyResolver,
// so a Reply store can verify replies against whatever identifiers the
// same process's Kevery already tracks.
func ResolverFromKevery(ky *eventing.Kevery) KeyResolver {
	return func(pre string) ([]core.Matter, core.Tholder, bool) {
		kv, ok := ky.Kever(pre)
		if !ok {
			return nil, core.Tholder{}, false
		}
		return kv.Verfers(), kv.Tholder(), true
	}
}
