package util

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyLimit(t *testing.T) {
	var c ConcurrencyLimit
	assert.Equal(t, "auto", c.String())

	require.NoError(t, c.Set("4"))
	assert.Equal(t, ConcurrencyLimit(4), c)
	assert.Equal(t, "4", c.String())

	require.NoError(t, c.Set("auto"))
	assert.Equal(t, ConcurrencyLimit(runtime.GOMAXPROCS(-1)), c)

	require.NoError(t, c.Set("-3"))
	assert.Equal(t, ConcurrencyLimit(1), c)

	require.Error(t, c.Set("many"))
	assert.Equal(t, ConcurrencyLimit(runtime.GOMAXPROCS(-1)), *GoMaxProcsConcurrencyLimit())
}
