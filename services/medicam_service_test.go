package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexMedicamCSV(t *testing.T) {
	// BOM, semicolons, French numerics, one duplicated code, one row
	// without a code.
	csvData := "\xEF\xBB\xBF" + strings.Join([]string{
		"CIP13;NB_BOITES;MONTANT_REMBOURSE;ATC5",
		"3400931111111;1 234;12 345,60;N02BE01",
		"3400931111111;766;1 654,40;N02BE01",
		"3400932222222;500;5 000,00;A10BA02",
		";;;",
	}, "\n")

	index, err := IndexMedicamCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, index, 2)

	first := index["3400931111111"]
	assert.InDelta(t, 2000, first.Boites, 1e-9)
	assert.InDelta(t, 14000, first.Euros, 1e-9)
	assert.Equal(t, "N02BE01", first.ATC)

	second := index["3400932222222"]
	assert.InDelta(t, 500, second.Boites, 1e-9)
	assert.InDelta(t, 5000, second.Euros, 1e-9)
}

func TestIndexMedicamCSVHeaderAliases(t *testing.T) {
	csvData := strings.Join([]string{
		"CIP;BOITES;MONTANT;ATC",
		"3400933333333;100;1 000,50;C09AA05",
	}, "\n")

	index, err := IndexMedicamCSV(strings.NewReader(csvData))
	require.NoError(t, err)

	aggregate := index["3400933333333"]
	assert.InDelta(t, 100, aggregate.Boites, 1e-9)
	assert.InDelta(t, 1000.5, aggregate.Euros, 1e-9)
	assert.Equal(t, "C09AA05", aggregate.ATC)
}

func TestIndexMedicamCSVWithoutCIPColumn(t *testing.T) {
	_, err := IndexMedicamCSV(strings.NewReader("code;volume\n1;2"))
	assert.Error(t, err)
}

func TestParseFrenchNumber(t *testing.T) {
	cases := map[string]float64{
		"1 234,56": 1234.56,
		"12 345":   12345,
		"1 234":    1234,
		"42":       42,
		"-3,5":     -3.5,
		"":         0,
		"n/a":      0,
	}
	for input, expected := range cases {
		assert.InDelta(t, expected, ParseFrenchNumber(input), 1e-9, "input %q", input)
	}
}

func TestDelta(t *testing.T) {
	assert.InDelta(t, 0.5, Delta(150, 100), 1e-9)
	assert.InDelta(t, -0.5, Delta(50, 100), 1e-9)
	assert.InDelta(t, 0.0, Delta(100, 100), 1e-9)

	// Zero-prior convention: a code appearing for the first time counts
	// as +100%, absence on both sides as flat.
	assert.Equal(t, 1.0, Delta(100, 0))
	assert.Equal(t, 0.0, Delta(0, 0))
}

func TestDeltaLowerBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	nonNegative := gen.Float64Range(0, 1e9)

	properties.Property("delta never drops below -100%", prop.ForAll(
		func(cur, prev float64) bool {
			return Delta(cur, prev) >= -1.0
		},
		nonNegative, nonNegative,
	))

	properties.TestingRun(t)
}

func TestBaseScore(t *testing.T) {
	// log10(990+10) == 3 exactly.
	assert.InDelta(t, (0.7*0.5+0.3*0.2)*3, BaseScore(0.5, 0.2, 990), 1e-9)

	// The +10 floor keeps the log term defined at zero boxes.
	assert.False(t, math.IsInf(BaseScore(1, 1, 0), 0))
	assert.False(t, math.IsNaN(BaseScore(1, 1, 0)))
}

func TestComputeCandidates(t *testing.T) {
	latest := map[string]MedicamAggregate{
		"A": {Boites: 1500, Euros: 15000},
		"B": {Boites: 500, Euros: 5000},
		"C": {Boites: 50, Euros: 800}, // below the noise floor
	}
	previous := map[string]MedicamAggregate{
		"A": {Boites: 1000, Euros: 10000},
		"B": {Boites: 600, Euros: 6000},
	}

	candidates := ComputeCandidates(latest, previous, 10)
	require.Len(t, candidates, 2)

	assert.Equal(t, "A", candidates[0].CIP13)
	assert.Equal(t, "B", candidates[1].CIP13)
	assert.InDelta(t, 0.5, candidates[0].DeltaVol, 1e-9)
	assert.InDelta(t, BaseScore(0.5, 0.5, 1500), candidates[0].BaseScore, 1e-9)
	assert.Less(t, candidates[1].BaseScore, candidates[0].BaseScore)
}

func TestComputeCandidatesShortlistCap(t *testing.T) {
	latest := make(map[string]MedicamAggregate)
	for i := 0; i < 30; i++ {
		latest[fmt.Sprintf("%013d", i)] = MedicamAggregate{Boites: 200 + float64(i), Euros: 1000}
	}

	candidates := ComputeCandidates(latest, map[string]MedicamAggregate{}, 5)
	assert.Len(t, candidates, 10)
}

func TestComputeCandidatesDeterministicTieBreak(t *testing.T) {
	// Identical aggregates produce identical scores; ordering must fall
	// back to the code rather than map iteration order.
	latest := map[string]MedicamAggregate{
		"B": {Boites: 200, Euros: 1000},
		"A": {Boites: 200, Euros: 1000},
		"C": {Boites: 200, Euros: 1000},
	}

	for i := 0; i < 10; i++ {
		candidates := ComputeCandidates(latest, map[string]MedicamAggregate{}, 10)
		require.Len(t, candidates, 3)
		assert.Equal(t, "A", candidates[0].CIP13)
		assert.Equal(t, "B", candidates[1].CIP13)
		assert.Equal(t, "C", candidates[2].CIP13)
	}
}

func TestDiscoverLatestResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resources": [
			{"url": "http://example.test/old.csv", "format": "csv", "title": "Medic'AM 2024-10", "last_modified": "2024-11-15T10:00:00"},
			{"url": "http://example.test/latest.csv", "format": "csv", "title": "Medic'AM 2024-12", "last_modified": "2025-01-15T10:00:00"},
			{"url": "http://example.test/doc.pdf", "format": "pdf", "title": "Medic'AM documentation", "last_modified": "2025-02-01T10:00:00"},
			{"url": "http://example.test/other.csv", "format": "csv", "title": "Indemnités journalières", "last_modified": "2025-02-01T10:00:00"},
			{"url": "http://example.test/previous.csv", "format": "csv", "title": "Medic'AM 2024-11", "last_modified": "2024-12-15T10:00:00"}
		]}`)
	}))
	defer server.Close()

	service := NewMedicamService(server.URL)
	latest, previous, err := service.DiscoverLatestResources(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Medic'AM 2024-12", latest.Title)
	assert.Equal(t, "Medic'AM 2024-11", previous.Title)
}

func TestDiscoverLatestResourcesNotEnoughSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resources": [
			{"url": "http://example.test/latest.csv", "format": "csv", "title": "Medic'AM 2024-12", "last_modified": "2025-01-15T10:00:00"}
		]}`)
	}))
	defer server.Close()

	service := NewMedicamService(server.URL)
	_, _, err := service.DiscoverLatestResources(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pas assez de fichiers Medic'AM disponibles.")
}
