package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterTable() Table {
	return Table{
		Title:   "JHS 1 roster",
		Headers: []string{"name", "studentId"},
		Rows:    [][]string{{"Kojo Mensah", "S-002"}, {"Ama Owusu", "S-001"}},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(rosterTable())
	require.NoError(t, err)
	assert.Equal(t, "name,studentId\nKojo Mensah,S-002\nAma Owusu,S-001\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRejectMalformedTables(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	assert.Error(t, err)

	_, err = NewPDFExporter().Render(Table{Headers: []string{"a", "b"}, Rows: [][]string{{"only"}}})
	assert.Error(t, err)
}
