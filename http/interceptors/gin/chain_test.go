package gin_test

import (
	"testing"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	interceptors "github.com/applyflow/telemetry/http/interceptors/gin"
)

func TestChain(t *testing.T) {
	mark := func(id string) ginpkg.HandlerFunc {
		return func(c *ginpkg.Context) {
			c.Writer.Header().Add("X-Order", id)
		}
	}

	t.Run("Push", func(t *testing.T) {
		chain := interceptors.NewChain()

		assert.True(t, chain.Push("a", mark("a")))
		assert.False(t, chain.Push("a", mark("a")))
		assert.True(t, chain.Push("b", mark("b")))
		assert.True(t, chain.Push("c", mark("c")))

		assert.Equal(t, []string{"a", "b", "c"}, chain.Order())
		assert.Len(t, chain.Handlers(), 3)
	})

	t.Run("InsertAfter", func(t *testing.T) {
		chain := interceptors.NewChain()

		assert.True(t, chain.Push("a", mark("a")))
		assert.True(t, chain.Push("b", mark("b")))
		assert.True(t, chain.InsertAfter("a", "c", mark("c")))

		assert.Equal(t, []string{"a", "c", "b"}, chain.Order())
	})

	t.Run("InsertAfterUnknownAnchor", func(t *testing.T) {
		chain := interceptors.NewChain()

		assert.True(t, chain.Push("a", mark("a")))
		assert.False(t, chain.InsertAfter("missing", "c", mark("c")))
		assert.False(t, chain.Exists("c"))
	})

	t.Run("InsertBefore", func(t *testing.T) {
		chain := interceptors.NewChain()

		assert.True(t, chain.Push("a", mark("a")))
		assert.True(t, chain.Push("b", mark("b")))
		assert.True(t, chain.InsertBefore("a", "c", mark("c")))

		assert.Equal(t, []string{"c", "a", "b"}, chain.Order())
	})

	t.Run("Remove", func(t *testing.T) {
		chain := interceptors.NewChain()

		assert.True(t, chain.Push("a", mark("a")))
		assert.True(t, chain.Push("b", mark("b")))
		assert.True(t, chain.Push("c", mark("c")))
		assert.True(t, chain.Remove("b"))
		assert.False(t, chain.Remove("b"))

		assert.Equal(t, []string{"a", "c"}, chain.Order())
	})

	t.Run("Exists", func(t *testing.T) {
		chain := interceptors.NewChain()

		assert.False(t, chain.Exists("a"))
		chain.Push("a", mark("a"))
		assert.True(t, chain.Exists("a"))
	})
}

func TestDefaultChainOrder(t *testing.T) {
	chain := interceptors.DefaultChain()

	assert.Equal(t, []string{
		interceptors.ChainIDCorrelation,
		interceptors.ChainIDLogging,
		interceptors.ChainIDPanicRecovery,
		interceptors.ChainIDErrorHandling,
		interceptors.ChainIDCompression,
		interceptors.ChainIDTimeout,
	}, chain.Order())
}

func TestDefaultChainWithoutCorrelation(t *testing.T) {
	chain := interceptors.DefaultChain(interceptors.WithCorrelationEnabled(false))
	assert.False(t, chain.Exists(interceptors.ChainIDCorrelation))
}
