package commands_test

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/txnimport/internal/auditlog"
)

const bankCSV = "Date,Description,Amount\n01/15/2024,Coffee Shop,-50.00\n01/16/2024,Payroll,120.00\n"

const bankQIF = "!Type:Bank\nD01/20/2024\nT-12.50\nPGrocer\n^\n"

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestParse_FileToCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bank.csv"), bankCSV)

	stdout, _, err := runTxnimport(t, dir, "parse", "bank.csv")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "batch_id", records[0][0])
	assert.Equal(t, "valid", records[1][2])
	assert.Equal(t, "2024-01-15", records[1][3])
	assert.Equal(t, "-50.00", records[1][4])
	assert.Equal(t, "Coffee Shop", records[1][5])
	assert.Equal(t, "120.00", records[2][4])
}

func TestParse_OutFileJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bank.csv"), bankCSV)

	stdout, _, err := runTxnimport(t, dir, "parse", "bank.csv", "--output", "json", "--out", "rows.json")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(filepath.Join(dir, "rows.json"))
	require.NoError(t, err)
	var batches []struct {
		Format string `json:"format"`
		File   string `json:"file"`
		Rows   []struct {
			RowIndex int               `json:"rowIndex"`
			Data     map[string]string `json:"normalizedData"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &batches))
	require.Len(t, batches, 1)
	assert.Equal(t, "csv", batches[0].Format)
	assert.Equal(t, "bank.csv", batches[0].File)
	require.Len(t, batches[0].Rows, 2)
	assert.Equal(t, "Coffee Shop", batches[0].Rows[0].Data["payee"])
}

func TestParse_DirectoryArchivesAndAudits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "import", "bank.csv"), bankCSV)
	writeFile(t, filepath.Join(dir, "import", "card.qif"), bankQIF)
	writeFile(t, filepath.Join(dir, "import", "notes.md"), "ignored")

	stdout, _, err := runTxnimport(t, dir, "parse", "import", "--archive")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1+2+1)

	for _, name := range []string{"bank.csv", "card.qif"} {
		_, err := os.Stat(filepath.Join(dir, "import", "processed", name))
		assert.NoError(t, err, "%s should be archived", name)
	}
	_, err = os.Stat(filepath.Join(dir, "import", "notes.md"))
	assert.NoError(t, err, "unsupported files stay in place")

	entries, err := auditlog.Read(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, auditlog.ActionParse, e.Action)
		assert.Empty(t, e.Error)
	}
}

func TestParse_Mapping(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "txnimport.yaml"), `column_mappings:
  odd:
    date: When
    amount: How Much
    payee: Who
`)
	writeFile(t, filepath.Join(dir, "odd.csv"), "When,How Much,Who\n2024-02-01,9.99,Stream Co\n")

	stdout, _, err := runTxnimport(t, dir, "parse", "odd.csv", "--mapping", "odd")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Stream Co")
	assert.Contains(t, stdout, "9.99")

	_, _, err = runTxnimport(t, dir, "parse", "odd.csv", "--mapping", "missing")
	assert.Error(t, err)
}

func TestParse_Failures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.md"), "hello")
	writeFile(t, filepath.Join(dir, "empty.csv"), "")

	_, stderr, err := runTxnimport(t, dir, "parse", "notes.md")
	require.Error(t, err)
	assert.Contains(t, stderr, "unsupported_extension")

	_, stderr, err = runTxnimport(t, dir, "parse", "empty.csv")
	require.Error(t, err)
	assert.Contains(t, stderr, "empty_file")

	_, stderr, err = runTxnimport(t, dir, "parse", "bank.csv", "--format", "mt940")
	require.Error(t, err)
	assert.Contains(t, stderr, "reading bank.csv")

	writeFile(t, filepath.Join(dir, "bank.csv"), bankCSV)
	_, stderr, err = runTxnimport(t, dir, "parse", "bank.csv", "--format", "mt940")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown_format")

	entries, err := auditlog.Read(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.NotEmpty(t, entries[0].Error)
}
