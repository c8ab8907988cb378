package metadata

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/canopy-network/ledgerx/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRows(t *testing.T) {
	rows := StartedRows("default", 10, 14)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, "default", row.Name)
		assert.Equal(t, uint64(10+i), utils.DecimalToU64(row.Version))
		assert.True(t, row.IsStarted())
		assert.False(t, row.IsError())
		assert.False(t, row.LastUpdated.IsZero())
	}

	rows = SuccessRows("default", 3, 3)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Success)
	assert.Nil(t, rows[0].Details)

	rows = ErrorRows("default", 0, 1, "boom")
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.IsError())
		require.NotNil(t, row.Details)
		assert.Equal(t, "boom", *row.Details)
	}

	assert.Empty(t, StatusRows("default", 5, 4, true, nil))
}

func TestStatusRowsAtMaxVersion(t *testing.T) {
	rows := SuccessRows("default", math.MaxUint64-1, math.MaxUint64)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(math.MaxUint64), utils.DecimalToU64(rows[1].Version))
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection reset")

	err := WrapStoreError("get max version", cause)
	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "metadata store: get max version: connection reset", err.Error())

	wrapped := fmt.Errorf("iteration: %w", err)
	assert.True(t, IsStoreError(wrapped))
	assert.Same(t, err, WrapStoreError("again", err))

	assert.NoError(t, WrapStoreError("noop", nil))
	assert.False(t, IsStoreError(cause))
}
