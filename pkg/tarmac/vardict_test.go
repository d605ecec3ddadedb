package tarmac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadVarDict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
variables:
  "20000000": ADDRESS_RamVecTable0
  "0x40240000": REGISTER_AdcOutput0
  "0X4024000C": REGISTER_AdcOutput3
`), 0o644))

	dict, err := LoadVarDict(path)
	require.NoError(t, err)

	assert.Equal(t, "ADDRESS_RamVecTable0", dict["20000000"])
	assert.Equal(t, "REGISTER_AdcOutput0", dict["40240000"], "0x prefixes are stripped")
	assert.Equal(t, "REGISTER_AdcOutput3", dict["4024000c"], "addresses are lowercased")
}

func TestLoadVarDict_BareMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`"2001ec00": ADDRESS_Glb_LogCounter`), 0o644))

	dict, err := LoadVarDict(path)
	require.NoError(t, err)
	assert.Equal(t, "ADDRESS_Glb_LogCounter", dict["2001ec00"])
}

func TestLoadVarDict_MissingFile(t *testing.T) {
	_, err := LoadVarDict(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVarDict_MergeLastWriteWins(t *testing.T) {
	dict := NewVarDict(map[string]string{
		"40240000": "REGISTER_Old",
		"40240004": "REGISTER_AdcOutput1",
	})

	dict.Merge(NewVarDict(map[string]string{"40240000": "REGISTER_New"}))

	assert.Equal(t, "REGISTER_New", dict["40240000"])
	assert.Equal(t, "REGISTER_AdcOutput1", dict["40240004"])
}

func TestVarDict_AddressesAreSorted(t *testing.T) {
	dict := NewVarDict(map[string]string{
		"40240000": "c",
		"20000000": "a",
		"2001ec00": "b",
	})

	assert.Equal(t, []string{"20000000", "2001ec00", "40240000"}, dict.Addresses())
}
