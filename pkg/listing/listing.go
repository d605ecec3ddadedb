// Package listing parses disassembly listing files into the lookup tables
// used to annotate a tarmac trace: a function symbol table and an
// address-to-instruction source index.
//
// The expected listing shape is a lone identifier line naming a function,
// immediately followed by the address line of its first instruction:
//
//	LOG_ILogWaypointValue
//	0x2000afc0: 0xb510      ....    PUSH     {r4,lr}
//	0x2000afc2: 0x4a0b      .J      LDR      r2,[pc,#44]
//
// Address lines that are not preceded by an identifier line are anonymous
// instruction lines; they still feed the source index.
package listing

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SourceIndex maps an instruction address (stripped lowercase hex) to its
// "mnemonic + first operand" text from the listing.
type SourceIndex map[string]string

// Parser scans a listing file and accumulates the symbol table and source
// index in a single pass.
type Parser struct {
	identifierPattern *regexp.Regexp
	addressPattern    *regexp.Regexp

	// Scanning state: a candidate symbol name is armed by a lone
	// identifier line and confirmed or discarded by the next line.
	candidate    string
	hasCandidate bool

	symbols *SymbolTable
	source  SourceIndex
}

// NewParser creates a listing parser with compiled patterns.
func NewParser() *Parser {
	return &Parser{
		identifierPattern: regexp.MustCompile(`^_*[a-zA-Z]+[a-zA-Z0-9_]+$`),
		addressPattern:    regexp.MustCompile(`^0x[0-9a-f]{8}:`),
		symbols:           NewSymbolTable(),
		source:            SourceIndex{},
	}
}

// ParseFile scans the listing at path. An unreadable listing is an error;
// a listing with no recognizable symbols is not.
func ParseFile(path string) (*SymbolTable, SourceIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open listing file: %w", err)
	}
	defer f.Close()

	p := NewParser()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		p.scanLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read listing file: %w", err)
	}

	return p.symbols, p.source, nil
}

// Parse scans listing text already in memory. Used by tests and callers
// that do their own I/O.
func Parse(text string) (*SymbolTable, SourceIndex) {
	p := NewParser()
	for _, line := range strings.Split(text, "\n") {
		p.scanLine(line)
	}
	return p.symbols, p.source
}

func (p *Parser) scanLine(line string) {
	tokens := strings.Fields(line)

	isAddressLine := false

	if len(tokens) > 4 && p.addressPattern.MatchString(tokens[0]) {
		isAddressLine = true
		p.source[stripAddress(tokens[0])] = fmt.Sprintf("%-9s%s", tokens[3], tokens[4])
	}

	if p.hasCandidate {
		p.hasCandidate = false

		// Only the line immediately after the identifier can confirm
		// the symbol.
		if isAddressLine {
			p.symbols.Add(stripAddress(tokens[0]), p.candidate)
		}
	}

	if len(tokens) == 1 && p.identifierPattern.MatchString(tokens[0]) {
		p.hasCandidate = true
		p.candidate = tokens[0]
	}
}

func stripAddress(token string) string {
	token = strings.TrimSuffix(token, ":")
	return strings.TrimPrefix(token, "0x")
}
