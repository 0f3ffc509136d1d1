package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"teacher", "slot"},
		Rows: []map[string]string{
			{"teacher": "T001", "slot": "2025-01-06T08:30"},
			{"teacher": "T002", "slot": "2025-01-06T10:30"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "teacher,slot\nT001,2025-01-06T08:30\nT002,2025-01-06T10:30\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "x")
	assert.Error(t, err)
	_, err = NewXLSXExporter().Render(Dataset{}, "x")
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Assignments")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset(), "Assignments")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Assignments"}, f.GetSheetList())
	rows, err := f.GetRows("Assignments")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"teacher", "slot"},
		{"T001", "2025-01-06T08:30"},
		{"T002", "2025-01-06T10:30"},
	}, rows)
}

func TestDatasetRecordsFillMissingCells(t *testing.T) {
	data := Dataset{Headers: []string{"a", "b"}, Rows: []map[string]string{{"b": "2"}}}
	assert.Equal(t, [][]string{{"", "2"}}, data.Records())
}

func TestPDFExporterWrapsAndPaginatesLongTables(t *testing.T) {
	data := Dataset{Headers: []string{"Date", "Day", "Session", "Start", "End", "Supervisors", "Count"}}
	for i := 0; i < 120; i++ {
		data.Rows = append(data.Rows, map[string]string{
			"Date":        "2025-01-06",
			"Supervisors": "Amélie Ben Salah; Sami Kefi; Ines Trabelsi; Omar Gharbi; Lina Haddad",
		})
	}
	out, err := NewPDFExporter().Render(data, "Affectations de surveillance")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestICSExporterRender(t *testing.T) {
	e := NewICSExporter("Not/AZone")
	assert.Equal(t, time.UTC, e.Location())
	e.zone = time.FixedZone("CET", 3600)
	e.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

	start := time.Date(2025, 1, 6, 8, 30, 0, 0, e.Location())
	out, err := e.Render("Exam supervision", []Event{{
		UID:      "s-1-T1@exam-proctor",
		Summary:  "Exam supervision: Amel Ben",
		Location: "A1, A2",
		Start:    start,
		End:      start.Add(90 * time.Minute),
	}})
	require.NoError(t, err)
	body := string(out)
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Contains(t, body, "METHOD:PUBLISH")
	assert.Contains(t, body, "DTSTART:20250106T073000Z")
	assert.Contains(t, body, "DTEND:20250106T090000Z")
	assert.Contains(t, body, "X-WR-CALNAME:Exam supervision")
}

func TestICSExporterRejectsBadEvents(t *testing.T) {
	e := NewICSExporter("")
	_, err := e.Render("x", nil)
	assert.Error(t, err)

	at := time.Date(2025, 1, 6, 8, 30, 0, 0, time.UTC)
	_, err = e.Render("x", []Event{{UID: "u", Start: at, End: at}})
	assert.Error(t, err)
	_, err = e.Render("x", []Event{{Start: at, End: at.Add(time.Hour)}})
	assert.Error(t, err)
}
