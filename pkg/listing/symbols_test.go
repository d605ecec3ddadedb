package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTable_DuplicateAddressLastWriteWins(t *testing.T) {
	table := NewSymbolTable()
	table.Add("2000afc0", "Foo_Old")
	table.Add("2000afc0", "Foo_New")

	name, ok := table.NameAt("2000afc0")
	require.True(t, ok)
	assert.Equal(t, "Foo_New", name)

	// Both entries stay recorded in listing order.
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "Foo_Old", table.Symbols()[0].Name)
}

func TestSymbolTable_DuplicateNameFirstWriteWins(t *testing.T) {
	table := NewSymbolTable()
	table.Add("2000afc0", "Handler")
	table.Add("2000b000", "Handler")

	address, ok := table.AddressOf("Handler")
	require.True(t, ok)
	assert.Equal(t, "2000afc0", address)
}

func TestSymbolTable_MissLeavesTableUntouched(t *testing.T) {
	table := NewSymbolTable()
	table.Add("2000afc0", "Foo")

	_, ok := table.NameAt("deadbeef")
	assert.False(t, ok)

	_, ok = table.AddressOf("Bar")
	assert.False(t, ok)

	assert.Equal(t, 1, table.Len())
}
