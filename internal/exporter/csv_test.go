package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navpulse/internal/config"
)

func setupTestEnv(t *testing.T) (*CSVWriter, *config.Paths) {
	t.Helper()
	paths := config.NewPaths(t.TempDir(), "", "")
	return NewCSVWriter(paths), paths
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestNewCSVWriter(t *testing.T) {
	paths := &config.Paths{}
	writer := NewCSVWriter(paths)

	assert.NotNil(t, writer)
	assert.Equal(t, paths, writer.paths)
	assert.NotNil(t, writer.logger)
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	writer, paths := setupTestEnv(t)

	tests := []struct {
		name     string
		filePath string
		options  WriteOptions
		wantPath string
		wantBOM  bool
	}{
		{
			name:     "report with headers",
			filePath: "run.csv",
			options: WriteOptions{
				Headers: []string{"date", "status"},
				Records: [][]string{{"2024-01-02", "written"}, {"2024-01-03", "no_data"}},
			},
			wantPath: filepath.Join(paths.ReportsDir, "run.csv"),
		},
		{
			name:     "bom prefix",
			filePath: "bom.csv",
			options: WriteOptions{
				Headers:   []string{"scheme_name"},
				Records:   [][]string{{"Axis Banking & PSU Debt Fund"}},
				BOMPrefix: true,
			},
			wantPath: filepath.Join(paths.ReportsDir, "bom.csv"),
			wantBOM:  true,
		},
		{
			name:     "processed prefix",
			filePath: "processed/extra/list.csv",
			options:  WriteOptions{Records: [][]string{{"a", "b"}}},
			wantPath: filepath.Join(paths.ProcessedDir, "extra", "list.csv"),
		},
		{
			name:     "absolute path",
			filePath: filepath.Join(paths.BaseDir, "abs", "x.csv"),
			options:  WriteOptions{Records: [][]string{{"1"}}},
			wantPath: filepath.Join(paths.BaseDir, "abs", "x.csv"),
		},
		{
			name:     "quoting",
			filePath: "quoted.csv",
			options: WriteOptions{
				Headers: []string{"error"},
				Records: [][]string{{`fetch: "bad", gateway` + "\nline"}},
			},
			wantPath: filepath.Join(paths.ReportsDir, "quoted.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := writer.WriteCSV(tt.filePath, tt.options)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, got)

			raw, err := os.ReadFile(got)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBOM, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))

			var want [][]string
			if len(tt.options.Headers) > 0 {
				want = append(want, tt.options.Headers)
			}
			want = append(want, tt.options.Records...)
			assert.Equal(t, want, readCSV(t, got))
		})
	}
}

func TestCSVWriter_OverwriteLeavesNoTempFiles(t *testing.T) {
	writer, paths := setupTestEnv(t)

	_, err := writer.WriteCSV("r.csv", WriteOptions{Records: [][]string{{"old"}, {"old"}}})
	require.NoError(t, err)
	path, err := writer.WriteCSV("r.csv", WriteOptions{Records: [][]string{{"new"}}})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"new"}}, readCSV(t, path))

	entries, err := os.ReadDir(paths.ReportsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r.csv", entries[0].Name())
}

func TestCSVWriter_UnwritableDirectory(t *testing.T) {
	writer, paths := setupTestEnv(t)

	blocker := filepath.Join(paths.BaseDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := writer.WriteCSV(filepath.Join(blocker, "r.csv"), WriteOptions{})
	assert.Error(t, err)
}
