package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterRoundTrip(t *testing.T) {
	c, err := NewCounter(CtrControllerIdxSigs, 3)
	require.NoError(t, err)
	require.Equal(t, "-A03", c.Qb64())

	got, err := CounterFromQb64(c.Qb64())
	require.NoError(t, err)
	require.Equal(t, c.Code(), got.Code())
	require.Equal(t, c.Count(), got.Count())
}

func TestCounterShortage(t *testing.T) {
	c, err := NewCounter(CtrWitnessIdxSigs, 1)
	require.NoError(t, err)

	_, err = CounterFromQb64(c.Qb64()[:2])
	require.Error(t, err)
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
}

func TestCounterUnknownCode(t *testing.T) {
	_, err := NewCounter(CounterCode("-Z"), 1)
	require.ErrorIs(t, err, ErrUnknownCounter)
}
