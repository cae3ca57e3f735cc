package serdering

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVersionStringRoundTrip(t *testing.T) {
	vs := BuildVersionString(KindJSON, 0xab)
	require.Equal(t, "KERI10JSON0000ab_", vs)

	kind, size, err := ParseVersionString(vs)
	require.NoError(t, err)
	require.Equal(t, KindJSON, kind)
	require.Equal(t, 0xab, size)
}

func TestParseVersionStringRejectsBadProtocol(t *testing.T) {
	_, _, err := ParseVersionString("NOPE10JSON000000_")
	require.Error(t, err)
	var verr *VersionError
	require.ErrorAs(t, err, &verr)
}

func TestParseVersionStringRejectsUnknownKind(t *testing.T) {
	_, _, err := ParseVersionString("KERI10XXXX000000_")
	require.Error(t, err)
}

func TestNewSerderSynthesizesCorrectSize(t *testing.T) {
	ked := NewKed()
	ked.Set("v", "")
	ked.Set("t", "icp")
	ked.Set("d", "")
	ked.Set("i", "")
	ked.Set("s", "0")

	sr, err := NewSerder(ked, KindJSON)
	require.NoError(t, err)
	require.Equal(t, len(sr.Raw()), sr.Size())

	kind, size, err := ParseVersionString(string(sr.Raw()[:versionLen]))
	require.NoError(t, err)
	require.Equal(t, KindJSON, kind)
	require.Equal(t, len(sr.Raw()), size)
}

func TestParseSerderRoundTripsThroughNewSerder(t *testing.T) {
	ked := NewKed()
	ked.Set("v", "")
	ked.Set("t", "rot")
	ked.Set("d", "")
	ked.Set("i", "Epre")
	ked.Set("s", "1")
	ked.Set("p", "Eprior")

	built, err := NewSerder(ked, KindCBOR)
	require.NoError(t, err)

	parsed, err := ParseSerder(built.Raw())
	require.NoError(t, err)
	require.Equal(t, built.Ked().Keys(), parsed.Ked().Keys())
	require.Equal(t, "rot", parsed.Ked().GetString("t"))
	require.Equal(t, uint64(1), parsed.Sn())
	require.Equal(t, "Epre", parsed.Pre())
}

func TestParseSerderDetectsShortage(t *testing.T) {
	ked := NewKed()
	ked.Set("v", "")
	ked.Set("t", "icp")
	built, err := NewSerder(ked, KindJSON)
	require.NoError(t, err)

	_, err = ParseSerder(built.Raw()[:len(built.Raw())-2])
	require.Error(t, err)
}

func TestParseSnHexDecodes(t *testing.T) {
	sn, err := parseSn("a")
	require.NoError(t, err)
	require.Equal(t, uint64(10), sn)
}
