package characteristic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceFloatTruncatesToIntFormat(t *testing.T) {
	v, err := Coerce(23.6, FormatUint8, Constraints{StepValue: 1})
	require.NoError(t, err)
	assert.Equal(t, uint8(23), v)
}

func TestCoerceRejectsAboveMax(t *testing.T) {
	_, err := Coerce(101, FormatUint8, Constraints{MaxValue: 100})
	require.Error(t, err)
	cerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, StatusInvalidValue, cerr.Status)
}

func TestCoerceRejectsInvalidEnum(t *testing.T) {
	_, err := Coerce(5, FormatUint8, Constraints{ValidValues: []int{0, 1, 2}})
	require.Error(t, err)
}

func TestCoerceSnapsToStep(t *testing.T) {
	v, err := Coerce(7.0, FormatFloat, Constraints{MinValue: 0.0, StepValue: 5.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestCoerceRejectsOverlongString(t *testing.T) {
	max := 3
	_, err := Coerce("toolong", FormatString, Constraints{MaxLen: &max})
	require.Error(t, err)
}

func TestCoerceBool(t *testing.T) {
	v, err := Coerce(true, FormatBool, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
