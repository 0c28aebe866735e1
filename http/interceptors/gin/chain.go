package gin

import (
	"github.com/gin-gonic/gin"
)

// Chain is an ordered, named middleware chain. Hosts register the
// observability hooks through it when they need explicit control over
// ordering instead of the DefaultInterceptors bundle. Operations are not
// concurrency-safe; build the chain during startup.
type Chain struct {
	itemOrder []string
	items     map[string]gin.HandlerFunc
}

func NewChain() *Chain {
	return &Chain{items: make(map[string]gin.HandlerFunc)}
}

func (c *Chain) Exists(id string) bool {
	_, ok := c.items[id]
	return ok
}

// Push adds a new middleware onto the end of the chain.
// Returns a boolean about whether an item with the specified ID already exists.
// Push("b", <mw>)
//
//	Before: a
//	After: a -> b
func (c *Chain) Push(id string, mw gin.HandlerFunc) bool {
	if _, ok := c.items[id]; ok {
		return false
	}

	c.items[id] = mw
	c.itemOrder = append(c.itemOrder, id)

	return true
}

// InsertAfter inserts a middleware after the specified middleware in the chain.
// Returns a boolean about whether the operation was successful.
// InsertAfter("a", "c", <mw>)
//
//	Before: a -> b
//	After: a -> c -> b
func (c *Chain) InsertAfter(afterID string, id string, mw gin.HandlerFunc) bool {
	if _, ok := c.items[id]; ok {
		return false
	}

	if _, ok := c.items[afterID]; !ok {
		return false
	}

	var index int
	for i := range c.itemOrder {
		if c.itemOrder[i] == afterID {
			index = i
			break
		}
	}

	c.itemOrder = append(c.itemOrder[:index+1],
		append([]string{id}, c.itemOrder[index+1:]...)...)
	c.items[id] = mw

	return true
}

// InsertBefore inserts a middleware before the specified middleware in the chain.
// Returns a boolean about whether the operation was successful.
// InsertBefore("b", "c", <mw>)
//
//	Before: a -> b
//	After: a -> c -> b
func (c *Chain) InsertBefore(beforeID string, id string, mw gin.HandlerFunc) bool {
	if _, ok := c.items[id]; ok {
		return false
	}

	if _, ok := c.items[beforeID]; !ok {
		return false
	}

	var index int
	for i := range c.itemOrder {
		if c.itemOrder[i] == beforeID {
			index = i
			break
		}
	}

	c.itemOrder = append(c.itemOrder[:index],
		append([]string{id}, c.itemOrder[index:]...)...)
	c.items[id] = mw

	return true
}

// Remove deletes a middleware from the chain.
// Returns a boolean about whether an item with the specified ID was found.
func (c *Chain) Remove(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}

	delete(c.items, id)
	for i := range c.itemOrder {
		if c.itemOrder[i] == id {
			c.itemOrder = append(c.itemOrder[:i], c.itemOrder[i+1:]...)
			break
		}
	}

	return true
}

// Order returns the registered middleware IDs in execution order.
func (c *Chain) Order() []string {
	out := make([]string, len(c.itemOrder))
	copy(out, c.itemOrder)
	return out
}

// Handlers materializes the chain for gin.Engine.Use.
func (c *Chain) Handlers() []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(c.itemOrder))
	for _, id := range c.itemOrder {
		out = append(out, c.items[id])
	}
	return out
}
