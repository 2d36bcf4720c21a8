package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotes(t *testing.T) {
	keys, err := parseNotes("60, 64,67")
	require.NoError(t, err)
	assert.Equal(t, []uint8{60, 64, 67}, keys)

	keys, err = parseNotes("")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = parseNotes("60,200")
	assert.Error(t, err)
	_, err = parseNotes("c4")
	assert.Error(t, err)
}
