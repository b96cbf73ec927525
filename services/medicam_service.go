package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pharmaproche/pharmacie-backend/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MedicamResource is one downloadable snapshot from the dataset
// metadata listing.
type MedicamResource struct {
	URL          string
	Title        string
	LastModified time.Time
}

// MedicamAggregate accumulates box counts and reimbursed amounts for one
// CIP13 code. A code appearing on multiple CSV rows sums up.
type MedicamAggregate struct {
	Boites float64
	Euros  float64
	ATC    string
}

// TrendCandidate is one scored code before enrichment.
type TrendCandidate struct {
	CIP13     string
	Boites    float64
	Euros     float64
	DeltaVol  float64 // fraction, not percent
	DeltaVal  float64
	BaseScore float64
}

// MedicamService fetches and diffs two successive Medic'AM snapshots.
// Unlike the pharmacy search it retries nothing itself: a stage failure
// surfaces as a single structural error with no partial result.
type MedicamService struct {
	datasetURL string
	client     *http.Client
}

func NewMedicamService(datasetURL string) *MedicamService {
	return &MedicamService{
		datasetURL: datasetURL,
		client:     shared.NewPooledHTTPClient(60 * time.Second),
	}
}

var medicTitlePattern = regexp.MustCompile(`(?i)medic`)

type datasetMetadata struct {
	Resources []struct {
		URL          string `json:"url"`
		Format       string `json:"format"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		LastModified string `json:"last_modified"`
		Published    string `json:"published"`
	} `json:"resources"`
}

// DiscoverLatestResources returns the two most recent Medic'AM CSV
// snapshots from the dataset metadata, newest first. Fails when fewer
// than two are available.
func (s *MedicamService) DiscoverLatestResources(ctx context.Context) (latest, previous MedicamResource, err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.datasetURL, nil)
	if err != nil {
		return latest, previous, err
	}

	response, err := s.client.Do(request)
	if err != nil {
		return latest, previous, shared.NewUpstreamError("DATASET_FETCH", fmt.Sprintf("dataset metadata fetch failed: %v", err), "MedicamService", "DiscoverLatestResources", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return latest, previous, shared.NewUpstreamError("DATASET_STATUS", fmt.Sprintf("data.gouv datasets error %d", response.StatusCode), "MedicamService", "DiscoverLatestResources", nil)
	}

	var metadata datasetMetadata
	if err := json.NewDecoder(response.Body).Decode(&metadata); err != nil {
		return latest, previous, shared.NewUpstreamError("DATASET_DECODE", fmt.Sprintf("malformed dataset metadata: %v", err), "MedicamService", "DiscoverLatestResources", err)
	}

	var candidates []MedicamResource
	for _, resource := range metadata.Resources {
		if !strings.EqualFold(resource.Format, "csv") {
			continue
		}
		title := resource.Title
		if title == "" {
			title = resource.Name
		}
		if !medicTitlePattern.MatchString(title) {
			continue
		}
		candidates = append(candidates, MedicamResource{
			URL:          resource.URL,
			Title:        title,
			LastModified: parseResourceTime(resource.LastModified, resource.Published),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastModified.After(candidates[j].LastModified)
	})

	if len(candidates) < 2 {
		return latest, previous, shared.NewUpstreamError("NOT_ENOUGH_SNAPSHOTS", "Pas assez de fichiers Medic'AM disponibles.", "MedicamService", "DiscoverLatestResources", nil)
	}

	logrus.WithFields(logrus.Fields{
		"component":     "MedicamService",
		"latest_file":   candidates[0].Title,
		"previous_file": candidates[1].Title,
	}).Info("Selected Medic'AM snapshot pair")

	return candidates[0], candidates[1], nil
}

func parseResourceTime(values ...string) time.Time {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, value := range values {
		if value == "" {
			continue
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// FetchIndexes downloads and indexes both snapshots concurrently; the
// two downloads are independent.
func (s *MedicamService) FetchIndexes(ctx context.Context, latest, previous MedicamResource) (latestIndex, previousIndex map[string]MedicamAggregate, err error) {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		latestIndex, err = s.FetchIndex(groupCtx, latest.URL)
		return err
	})
	group.Go(func() error {
		var err error
		previousIndex, err = s.FetchIndex(groupCtx, previous.URL)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return latestIndex, previousIndex, nil
}

// FetchIndex downloads one CSV snapshot and indexes it by CIP13.
func (s *MedicamService) FetchIndex(ctx context.Context, url string) (map[string]MedicamAggregate, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, shared.NewUpstreamError("CSV_FETCH", fmt.Sprintf("CSV download failed: %v", err), "MedicamService", "FetchIndex", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, shared.NewUpstreamError("CSV_STATUS", fmt.Sprintf("CSV download failed %d", response.StatusCode), "MedicamService", "FetchIndex", nil)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, shared.NewUpstreamError("CSV_READ", fmt.Sprintf("CSV read failed: %v", err), "MedicamService", "FetchIndex", err)
	}

	index, err := IndexMedicamCSV(bytes.NewReader(body))
	if err != nil {
		return nil, shared.NewUpstreamError("CSV_PARSE", fmt.Sprintf("CSV parse failed: %v", err), "MedicamService", "FetchIndex", err)
	}
	return index, nil
}

// Column aliases per logical field; headers vary across releases.
var (
	cipColumns     = []string{"cip13", "cip"}
	boitesColumns  = []string{"nb_boites", "boites"}
	montantColumns = []string{"montant_rembourse", "montant"}
	atcColumns     = []string{"atc5", "atc"}
)

// IndexMedicamCSV parses a semicolon-delimited Medic'AM CSV (header row,
// BOM-tolerant) and accumulates box counts and reimbursed amounts per
// CIP13 code.
func IndexMedicamCSV(r io.Reader) (map[string]MedicamAggregate, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("missing header row: %w", err)
	}

	cipIdx := findColumn(header, cipColumns)
	boitesIdx := findColumn(header, boitesColumns)
	montantIdx := findColumn(header, montantColumns)
	atcIdx := findColumn(header, atcColumns)

	if cipIdx < 0 {
		return nil, fmt.Errorf("no CIP13 column found in header %v", header)
	}

	index := make(map[string]MedicamAggregate)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed rows are skipped, not fatal; releases occasionally
			// carry stray lines.
			continue
		}

		cip := strings.TrimSpace(field(record, cipIdx))
		if cip == "" {
			continue
		}

		aggregate := index[cip]
		aggregate.Boites += ParseFrenchNumber(field(record, boitesIdx))
		aggregate.Euros += ParseFrenchNumber(field(record, montantIdx))
		if atc := strings.TrimSpace(field(record, atcIdx)); atc != "" {
			aggregate.ATC = atc
		}
		index[cip] = aggregate
	}

	return index, nil
}

func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), alias) {
				return i
			}
		}
	}
	return -1
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// ParseFrenchNumber parses a French-formatted numeric string (spaces as
// thousands separators, comma as decimal separator). Unparseable values
// coerce to zero.
func ParseFrenchNumber(value string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0
	}
	return n
}

// Delta returns the relative change from prev to cur as a fraction. The
// zero-prior convention is 1.0 when cur > 0 and 0.0 otherwise, so a code
// appearing for the first time counts as +100% rather than dividing by
// zero.
func Delta(cur, prev float64) float64 {
	if prev > 0 {
		return (cur - prev) / prev
	}
	if cur > 0 {
		return 1.0
	}
	return 0.0
}

// BaseScore weighs volume momentum over value momentum and scales by
// log10(boites+10) so low-volume codes cannot dominate on percentage
// noise alone. The +10 floor keeps the log term defined at zero boxes.
func BaseScore(deltaVol, deltaVal, boites float64) float64 {
	return (0.7*deltaVol + 0.3*deltaVal) * math.Log10(boites+10)
}

// ShortlistNoiseFloor drops codes below this many current-period boxes.
const ShortlistNoiseFloor = 100

// ComputeCandidates diffs the two indexes and returns the shortlist of
// at most 2*limit candidates ordered by descending base score, ready for
// enrichment. The over-fetch leaves room for the buzz bonus to reorder
// the final ranking.
func ComputeCandidates(latest, previous map[string]MedicamAggregate, limit int) []TrendCandidate {
	candidates := make([]TrendCandidate, 0, len(latest))
	for cip, cur := range latest {
		prev := previous[cip]

		deltaVol := Delta(cur.Boites, prev.Boites)
		deltaVal := Delta(cur.Euros, prev.Euros)

		candidates = append(candidates, TrendCandidate{
			CIP13:     cip,
			Boites:    cur.Boites,
			Euros:     cur.Euros,
			DeltaVol:  deltaVol,
			DeltaVal:  deltaVal,
			BaseScore: BaseScore(deltaVol, deltaVal, cur.Boites),
		})
	}

	shortlisted := candidates[:0]
	for _, candidate := range candidates {
		if candidate.Boites >= ShortlistNoiseFloor {
			shortlisted = append(shortlisted, candidate)
		}
	}

	// Tie-break on code for deterministic output; map iteration order
	// would otherwise leak into the ranking.
	sort.Slice(shortlisted, func(i, j int) bool {
		if shortlisted[i].BaseScore != shortlisted[j].BaseScore {
			return shortlisted[i].BaseScore > shortlisted[j].BaseScore
		}
		return shortlisted[i].CIP13 < shortlisted[j].CIP13
	})

	if len(shortlisted) > 2*limit {
		shortlisted = shortlisted[:2*limit]
	}
	return shortlisted
}
