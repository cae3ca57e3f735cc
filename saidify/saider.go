// Package saidify computes and verifies Self-Addressing Identifiers (SAIDs):
// a digest of a mapping taken over itself, with the target field dummied out
// during the digest pass so the digest does not depend on its own value.
package saidify

import (
	"fmt"
	"strings"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
)

// DefaultField is the event field a SAID is normally computed over ("d").
const DefaultField = "d"

// Saidify replaces ked[field] with its correct-width dummy, sets ked["v"]
// (when present) to the version string carrying the serialized size,
// canonically serializes ked under kind, digests the result with code, and
// writes the encoded digest back into ked[field]. Since the dummy and the
// digest have the same width, the size in "v" stays correct afterwards. It
// returns the computed SAID in qb64.
func Saidify(ked *serdering.Ked, field string, code core.MatterCode, kind serdering.Kind) (string, error) {
	if field == "" {
		field = DefaultField
	}
	width := code.Size()
	if width == 0 {
		return "", fmt.Errorf("saidify: %w: %q", core.ErrUnknownCode, code)
	}
	if !core.DigestCodes[code] {
		return "", fmt.Errorf("saidify: %q is not a digest code", code)
	}

	ked.Set(field, strings.Repeat("#", width))
	if _, ok := ked.Get("v"); ok {
		ked.Set("v", serdering.BuildVersionString(kind, 0))
		sized, err := serdering.EncodeKed(ked, kind)
		if err != nil {
			return "", fmt.Errorf("saidify: serialize for size: %w", err)
		}
		ked.Set("v", serdering.BuildVersionString(kind, len(sized)))
	}

	raw, err := serdering.EncodeKed(ked, kind)
	if err != nil {
		return "", fmt.Errorf("saidify: serialize for digest: %w", err)
	}
	d, err := core.Digest(code, raw)
	if err != nil {
		return "", fmt.Errorf("saidify: digest: %w", err)
	}
	said := d.Qb64()
	ked.Set(field, said)
	return said, nil
}

// Verify recomputes the SAID over ked (after dummying field) and reports
// whether it matches the value currently stored there.
func Verify(ked *serdering.Ked, field string, code core.MatterCode, kind serdering.Kind) (bool, error) {
	if field == "" {
		field = DefaultField
	}
	stored, ok := ked.Get(field)
	if !ok {
		return false, fmt.Errorf("saidify: field %q not present", field)
	}
	storedSaid, ok := stored.(string)
	if !ok {
		return false, fmt.Errorf("saidify: field %q is not a string", field)
	}

	work := ked.Clone()
	recomputed, err := Saidify(work, field, code, kind)
	if err != nil {
		return false, err
	}
	return recomputed == storedSaid, nil
}
