package tarmac

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// VarDict names known memory-mapped variables and registers by data
// address. Keys are lowercase hex without the "0x" prefix.
type VarDict map[string]string

// varDictFile is the on-disk shape of a watchpoint dictionary:
//
//	variables:
//	  "20000000": ADDRESS_RamVecTable0
//	  "40240000": REGISTER_AdcOutput0
type varDictFile struct {
	Variables map[string]string `yaml:"variables"`
}

// LoadVarDict reads a watchpoint dictionary from a YAML file. A file with
// no variables mapping is accepted as a bare address-to-name map.
func LoadVarDict(path string) (VarDict, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable dictionary: %w", err)
	}

	var file varDictFile
	err = yaml.Unmarshal(content, &file)

	if err != nil || len(file.Variables) == 0 {
		var bare map[string]string
		if bareErr := yaml.Unmarshal(content, &bare); bareErr == nil {
			return NewVarDict(bare), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse variable dictionary %s: %w", path, err)
		}
	}

	return NewVarDict(file.Variables), nil
}

// NewVarDict builds a dictionary from raw address-to-name pairs,
// normalizing the address keys.
func NewVarDict(raw map[string]string) VarDict {
	dict := VarDict{}
	for address, name := range raw {
		dict[normalizeAddress(address)] = name
	}
	return dict
}

// Merge overlays other onto d, last write wins.
func (d VarDict) Merge(other VarDict) {
	for address, name := range other {
		d[address] = name
	}
}

// Addresses returns all dictionary addresses in sorted order.
func (d VarDict) Addresses() []string {
	addresses := maps.Keys(d)
	sort.Strings(addresses)
	return addresses
}

func normalizeAddress(address string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(address)), "0x")
}
