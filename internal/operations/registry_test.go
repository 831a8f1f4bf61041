package operations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthetl/internal/operations"
	"healthetl/internal/operations/testutil"
)

func ids(steps []operations.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID()
	}
	return out
}

func TestRegistryRegister(t *testing.T) {
	registry := operations.NewRegistry()

	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("load")))
	assert.True(t, registry.Has("load"))
	assert.Equal(t, 1, registry.Count())

	assert.Error(t, registry.Register(testutil.CreateSuccessfulStage("load")), "duplicate ID")
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(testutil.CreateSuccessfulStage("")))

	_, err := registry.Get("missing")
	assert.Error(t, err)
}

func TestGetDependencyOrder(t *testing.T) {
	registry := operations.NewRegistry()
	// registered out of order on purpose
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("publish", "transform")))
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("load")))
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("transform", "validate")))
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("validate", "load")))

	ordered, err := registry.GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"load", "validate", "transform", "publish"}, ids(ordered))
}

func TestGetDependencyOrderErrors(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		registry := operations.NewRegistry()
		require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("validate", "load")))
		_, err := registry.GetDependencyOrder()
		assert.ErrorContains(t, err, "non-existent")
	})

	t.Run("cycle", func(t *testing.T) {
		registry := operations.NewRegistry()
		require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("a", "b")))
		require.NoError(t, registry.Register(testutil.CreateSuccessfulStage("b", "a")))
		_, err := registry.GetDependencyOrder()
		assert.ErrorContains(t, err, "cycle")
	})
}
