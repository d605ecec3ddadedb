// Package csource recovers C function prototypes from a source tree with a
// permissive regex pass. The results are cosmetic annotations only; false
// negatives are tolerated and no real C grammar is involved.
package csource

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Function is one heuristically recovered function declaration.
type Function struct {
	FileName   string
	ReturnType string
	Name       string
	Parameters []string
}

// Prototype renders the declaration the way it is printed in entry banners.
func (f Function) Prototype() string {
	return f.ReturnType + " " + f.Name + "( " + strings.Join(f.Parameters, ", ") + " )"
}

// Table is the recovered declarations in discovery order. Duplicates are
// kept; Find resolves to the first match.
type Table []Function

// Find returns the first recovered declaration with the given name.
func (t Table) Find(name string) (Function, bool) {
	for _, f := range t {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Options control the source tree walk.
type Options struct {
	// Extension of source files to scan, ".c" if empty.
	Extension string

	// ExcludeMarkers skips any file whose path contains one of these
	// case-insensitive substrings. Used to keep third-party library
	// sources out of the table.
	ExcludeMarkers []string
}

var declarationPattern = regexp.MustCompile(`([a-zA-Z0-9_* ]+) ([a-zA-Z_][a-zA-Z0-9_]*)\(([^)]*)\)`)

// Scan walks root recursively and recovers function declarations from every
// matching source file. Unreadable files are skipped and a missing root
// yields an empty table; the scan is best-effort throughout.
func Scan(root string, opts Options) Table {
	ext := opts.Extension
	if ext == "" {
		ext = ".c"
	}

	var table Table

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if excluded(path, opts.ExcludeMarkers) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		table = append(table, ScanContent(path, string(content))...)
		return nil
	})

	return table
}

// ScanContent recovers declarations from a single file's content.
func ScanContent(fileName, content string) Table {
	var table Table

	for _, match := range declarationPattern.FindAllStringSubmatch(content, -1) {
		returnType := strings.TrimSpace(match[1])
		if returnType == "" {
			continue
		}

		table = append(table, Function{
			FileName:   fileName,
			ReturnType: returnType,
			Name:       match[2],
			Parameters: splitParameters(match[3]),
		})
	}

	return table
}

// splitParameters splits a parameter list on top-level commas only, so
// function-pointer parameters with their own parenthesized argument lists
// stay intact.
func splitParameters(params string) []string {
	var list []string
	var current strings.Builder
	depth := 0

	for _, c := range strings.TrimSpace(params) {
		switch {
		case c == '(':
			depth++
			current.WriteRune(c)
		case c == ')':
			depth--
			current.WriteRune(c)
		case c == ',' && depth == 0:
			list = append(list, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}

	if current.Len() > 0 {
		list = append(list, strings.TrimSpace(current.String()))
	}

	return list
}

func excluded(path string, markers []string) bool {
	lower := strings.ToLower(path)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
