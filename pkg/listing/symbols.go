package listing

// Symbol is one (address, function name) pair from the listing, in listing
// order. Address is lowercase hex with the "0x" prefix and trailing ":"
// stripped.
type Symbol struct {
	Address string
	Name    string
}

// SymbolTable maps function entry addresses to names. Duplicate addresses
// follow a last-write-wins policy for address lookups, while name lookups
// resolve to the first occurrence of the name. Both policies are deliberate
// and pinned by tests.
type SymbolTable struct {
	symbols []Symbol
	byAddr  map[string]int
	byName  map[string]int
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byAddr: map[string]int{},
		byName: map[string]int{},
	}
}

// Add records a symbol at the end of the table.
func (t *SymbolTable) Add(address, name string) {
	index := len(t.symbols)
	t.symbols = append(t.symbols, Symbol{Address: address, Name: name})

	t.byAddr[address] = index

	if _, exists := t.byName[name]; !exists {
		t.byName[name] = index
	}
}

// NameAt returns the name of the function starting at the given address.
func (t *SymbolTable) NameAt(address string) (string, bool) {
	index, ok := t.byAddr[address]
	if !ok {
		return "", false
	}
	return t.symbols[index].Name, true
}

// AddressOf returns the entry address of the named function.
func (t *SymbolTable) AddressOf(name string) (string, bool) {
	index, ok := t.byName[name]
	if !ok {
		return "", false
	}
	return t.symbols[index].Address, true
}

// Len returns the number of recorded symbols, duplicates included.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// Symbols returns all recorded symbols in listing order.
func (t *SymbolTable) Symbols() []Symbol {
	return t.symbols
}
