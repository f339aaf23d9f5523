package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDs(t *testing.T) {
	gen := NewSequenceIDs("api")

	assert.Equal(t, "api-1", gen.Next())
	assert.Equal(t, "api-2", gen.Next())

	gen.Reset()
	assert.Equal(t, "api-1", gen.Next())
}

func TestSequenceIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "req-1", NewSequenceIDs("").Next())
}
