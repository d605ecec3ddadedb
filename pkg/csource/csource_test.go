package csource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanContent_RecoversDeclarations(t *testing.T) {
	content := `
#include "Log.h"

void LOG_ILogWaypointValue( uint32 logVal )
{
}

static uint32 Log_NextSequence(void)
{
	return 0;
}
`

	table := ScanContent("Log_Handlers.c", content)
	require.NotEmpty(t, table)

	fn, ok := table.Find("LOG_ILogWaypointValue")
	require.True(t, ok)
	assert.Equal(t, "Log_Handlers.c", fn.FileName)
	assert.Equal(t, "void", fn.ReturnType)
	assert.Equal(t, []string{"uint32 logVal"}, fn.Parameters)
	assert.Equal(t, "void LOG_ILogWaypointValue( uint32 logVal )", fn.Prototype())
}

func TestScanContent_KeepsDuplicatesFirstMatchWins(t *testing.T) {
	table := ScanContent("a.c", "void Foo_Run(int a)\n{\n}\n")
	table = append(table, ScanContent("b.c", "void Foo_Run(char b)\n{\n}\n")...)

	fn, ok := table.Find("Foo_Run")
	require.True(t, ok)
	assert.Equal(t, "a.c", fn.FileName)
	assert.Len(t, table, 2)
}

func TestSplitParameters(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		expected []string
	}{
		{
			name:     "empty",
			params:   "",
			expected: nil,
		},
		{
			name:     "single",
			params:   "uint32 logVal",
			expected: []string{"uint32 logVal"},
		},
		{
			name:     "multiple",
			params:   "uint32 a, char *b, const void *c",
			expected: []string{"uint32 a", "char *b", "const void *c"},
		},
		{
			name:     "function pointer keeps inner commas",
			params:   "void (*callback)(uint32, char), int count",
			expected: []string{"void (*callback)(uint32, char)", "int count"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitParameters(tt.params))
		})
	}
}

func TestScan_WalksTreeAndExcludesThirdParty(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "Source", "Log", "Log_Handlers.c"),
		"void LOG_ILogWaypointValue( uint32 logVal )\n{\n}\n")
	writeFile(t, filepath.Join(root, "Lib", "TinyCBOR", "cborencoder.c"),
		"void cbor_encoder_init(CborEncoder *encoder)\n{\n}\n")
	writeFile(t, filepath.Join(root, "Source", "Log", "Log.h"),
		"void Log_FromHeader(void)\n")

	table := Scan(root, Options{ExcludeMarkers: []string{"tinycbor"}})

	_, ok := table.Find("LOG_ILogWaypointValue")
	assert.True(t, ok)

	_, ok = table.Find("cbor_encoder_init")
	assert.False(t, ok, "third-party sources must be excluded by path marker")

	_, ok = table.Find("Log_FromHeader")
	assert.False(t, ok, "only the configured extension is scanned")
}

func TestScan_MissingRootIsBestEffort(t *testing.T) {
	table := Scan(filepath.Join(t.TempDir(), "does-not-exist"), Options{})
	assert.Empty(t, table)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
