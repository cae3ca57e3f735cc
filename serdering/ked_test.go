package serdering

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKedPreservesInsertionOrder(t *testing.T) {
	k := NewKed()
	k.Set("v", "KERI10JSON000000_")
	k.Set("t", "icp")
	k.Set("d", "")
	k.Set("i", "")
	require.Equal(t, []string{"v", "t", "d", "i"}, k.Keys())
}

func TestKedSetOverwritesInPlace(t *testing.T) {
	k := NewKed()
	k.Set("a", 1)
	k.Set("b", 2)
	k.Set("a", 99)
	require.Equal(t, []string{"a", "b"}, k.Keys())
	v, ok := k.Get("a")
	require.True(t, ok)
	require.Equal(t, 99, v)
}

func TestKedJSONRoundTripPreservesOrder(t *testing.T) {
	k := NewKed()
	k.Set("v", "KERI10JSON000000_")
	k.Set("t", "icp")
	k.Set("kt", "2")
	k.Set("k", []any{"A", "B", "C"})

	data, err := k.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"v":"KERI10JSON000000_","t":"icp","kt":"2","k":["A","B","C"]}`, string(data))

	back := NewKed()
	require.NoError(t, back.UnmarshalJSON(data))
	require.Equal(t, k.Keys(), back.Keys())
	require.Equal(t, "icp", back.GetString("t"))
}

func TestKedJSONNestedMapPreservesOrder(t *testing.T) {
	inner := NewKed()
	inner.Set("x", "1")
	inner.Set("y", "2")
	k := NewKed()
	k.Set("a", inner)

	data, err := k.MarshalJSON()
	require.NoError(t, err)

	back := NewKed()
	require.NoError(t, back.UnmarshalJSON(data))
	nested, ok := back.Get("a")
	require.True(t, ok)
	nk, ok := nested.(*Ked)
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, nk.Keys())
}

func TestKedCBORRoundTripPreservesOrder(t *testing.T) {
	k := NewKed()
	k.Set("v", "KERI10CBOR000000_")
	k.Set("t", "rot")
	k.Set("s", "1")
	k.Set("k", []any{"A", "B"})
	nested := NewKed()
	nested.Set("x", "deep")
	k.Set("n", nested)

	data, err := k.MarshalCBOR()
	require.NoError(t, err)

	back := NewKed()
	require.NoError(t, back.UnmarshalCBOR(data))
	require.Equal(t, k.Keys(), back.Keys())
	require.Equal(t, "rot", back.GetString("t"))

	list, ok := back.Get("k")
	require.True(t, ok)
	require.Equal(t, []any{"A", "B"}, list)

	nv, ok := back.Get("n")
	require.True(t, ok)
	nested2, ok := nv.(*Ked)
	require.True(t, ok)
	require.Equal(t, "deep", nested2.GetString("x"))
}

func TestKedMsgpackRoundTripPreservesOrder(t *testing.T) {
	k := NewKed()
	k.Set("v", "KERI10MGPK000000_")
	k.Set("t", "ixn")
	k.Set("a", []any{"one", "two", "three"})

	data, err := k.MarshalMsgpack()
	require.NoError(t, err)

	back := NewKed()
	require.NoError(t, back.UnmarshalMsgpack(data))
	require.Equal(t, k.Keys(), back.Keys())
	require.Equal(t, "ixn", back.GetString("t"))

	list, ok := back.Get("a")
	require.True(t, ok)
	require.Equal(t, []any{"one", "two", "three"}, list)
}

func TestKedCloneIsIndependent(t *testing.T) {
	k := NewKed()
	k.Set("a", 1)
	c := k.Clone()
	c.Set("b", 2)
	require.Equal(t, 1, k.Len())
	require.Equal(t, 2, c.Len())
}

func TestKedDeleteShiftsIndex(t *testing.T) {
	k := NewKed()
	k.Set("a", 1)
	k.Set("b", 2)
	k.Set("c", 3)
	k.Delete("b")
	require.Equal(t, []string{"a", "c"}, k.Keys())
	v, ok := k.Get("c")
	require.True(t, ok)
	require.Equal(t, 3, v)
}
