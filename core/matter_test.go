package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatterRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code MatterCode
		raw  []byte
	}{
		{"ed25519 non-transferable key", CodeEd25519N, bytes.Repeat([]byte{0x01}, 32)},
		{"ed25519 transferable key", CodeEd25519, bytes.Repeat([]byte{0x02}, 32)},
		{"blake3-256 digest", CodeBlake3_256, bytes.Repeat([]byte{0x03}, 32)},
		{"ed25519 seed", CodeEd25519Seed, bytes.Repeat([]byte{0x04}, 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatter(tt.code, tt.raw)
			require.NoError(t, err)

			fromQb64, err := MatterFromQb64(m.Qb64())
			require.NoError(t, err)
			require.True(t, m.Equal(fromQb64))

			fromQb2, err := MatterFromQb2(m.Qb2())
			require.NoError(t, err)
			require.True(t, m.Equal(fromQb2))
		})
	}
}

func TestMatterWrongSize(t *testing.T) {
	_, err := NewMatter(CodeEd25519N, make([]byte, 10))
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestMatterQb64Shortage(t *testing.T) {
	full, err := NewMatter(CodeEd25519N, bytes.Repeat([]byte{0x09}, 32))
	require.NoError(t, err)

	truncated := full.Qb64()[:10]
	_, err = MatterFromQb64(truncated)
	require.Error(t, err)

	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Greater(t, shortage.N, 0)
}

func TestMatterEmptyInputs(t *testing.T) {
	_, err := MatterFromQb64("")
	require.ErrorIs(t, err, ErrEmptyQb64)

	_, err = MatterFromQb2(nil)
	require.ErrorIs(t, err, ErrEmptyQb2)
}
