package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pharmaproche/pharmacie-backend/models"
	"github.com/pharmaproche/pharmacie-backend/shared"
	"github.com/sirupsen/logrus"
)

// OverpassServiceConfiguration holds tuning parameters for the pharmacy
// search pipeline.
type OverpassServiceConfiguration struct {
	EndpointURL        string        // Overpass interpreter URL
	HTTPRequestTimeout time.Duration // Client-side cap; the query itself declares timeout:90
	MaxRetryAttempts   int           // Additional attempts after the first on 504/network failure
	RetryBaseDelay     time.Duration // First backoff; doubles on each retry
	MaxResults         int           // Result list is truncated to this many entries
}

// NewDefaultOverpassServiceConfiguration returns production defaults.
func NewDefaultOverpassServiceConfiguration(endpointURL string) *OverpassServiceConfiguration {
	return &OverpassServiceConfiguration{
		EndpointURL:        endpointURL,
		HTTPRequestTimeout: 95 * time.Second,
		MaxRetryAttempts:   3,
		RetryBaseDelay:     1000 * time.Millisecond,
		MaxResults:         100,
	}
}

// overpassElement is one raw feature from the interpreter response.
// Nodes carry lat/lon directly; ways carry a centroid under "center".
type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// OverpassService runs the pharmacy discovery and ranking pipeline
// against an Overpass interpreter.
//
// Search never returns an error: the UI contract is "degrade to no
// results" on any upstream failure, so errors are logged and swallowed
// here.
type OverpassService struct {
	config   *OverpassServiceConfiguration
	client   *http.Client
	enricher *AddressEnricher
	clock    Clock
}

// NewOverpassService creates the search pipeline. enricher may be nil to
// disable the background address pass (used by some tests).
func NewOverpassService(config *OverpassServiceConfiguration, enricher *AddressEnricher, clock Clock) *OverpassService {
	return &OverpassService{
		config:   config,
		client:   shared.NewPooledHTTPClient(config.HTTPRequestTimeout),
		enricher: enricher,
		clock:    clock,
	}
}

// Search returns at most MaxResults pharmacies around (lat, lon) sorted
// by ascending great-circle distance. radiusKm is converted to meters
// for the spatial predicate. onlyGuard narrows the query to on-duty
// pharmacies; openNow applies the time-of-day filter.
//
// The returned slice elements are the same instances the background
// address enricher mutates afterwards; callers rendering the list should
// re-read addresses on change rather than copy them eagerly.
func (s *OverpassService) Search(ctx context.Context, lat, lon, radiusKm float64, onlyGuard, openNow bool) []*models.Pharmacy {
	logger := logrus.WithFields(logrus.Fields{
		"component":  "OverpassService",
		"lat":        lat,
		"lon":        lon,
		"radius_km":  radiusKm,
		"only_guard": onlyGuard,
		"open_now":   openNow,
	})

	query := buildOverpassQuery(lat, lon, radiusKm*1000, onlyGuard)

	raw, err := s.fetchFeatures(ctx, query)
	if err != nil {
		logger.Errorf("Pharmacy search failed, returning empty result set: %v", err)
		return []*models.Pharmacy{}
	}

	pharmacies := make([]*models.Pharmacy, 0, len(raw.Elements))
	for _, element := range raw.Elements {
		pharmacies = append(pharmacies, normalizePharmacy(element, lat, lon))
	}

	if openNow {
		pharmacies = filterByOpeningHours(pharmacies, s.clock.Now())
	}

	// Stable: ties keep input order.
	sort.SliceStable(pharmacies, func(i, j int) bool {
		return *pharmacies[i].DistanceKm < *pharmacies[j].DistanceKm
	})

	if len(pharmacies) > s.config.MaxResults {
		pharmacies = pharmacies[:s.config.MaxResults]
	}

	logger.WithField("result_count", len(pharmacies)).Info("Pharmacy search completed")

	// Address refinement must not delay the response and must run to
	// completion after the request context ends, so the goroutine gets a
	// fresh context. The request context belongs to the server and must
	// not be retained past the handler's return. The goroutine works on
	// the same Pharmacy instances just returned and patches addresses in
	// place.
	if s.enricher != nil {
		go s.enricher.Run(context.Background(), pharmacies)
	}

	return pharmacies
}

func (s *OverpassService) fetchFeatures(ctx context.Context, query string) (*overpassResponse, error) {
	form := "data=" + url.QueryEscape(query)

	newRequest := func() (*http.Request, error) {
		request, err := http.NewRequest(http.MethodPost, s.config.EndpointURL, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return request, nil
	}

	response, err := shared.ExecuteHTTPRequestWithRetry(
		ctx, s.client, newRequest,
		shared.RetryOnGatewayTimeout,
		s.config.MaxRetryAttempts,
		s.config.RetryBaseDelay,
	)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overpass returned HTTP %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read overpass response: %w", err)
	}

	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}
	return &parsed, nil
}

// buildOverpassQuery renders the Overpass QL statement for pharmacies
// within radiusMeters of the point. The guard variant keeps only
// features whose note mentions "garde" or whose opening hours are 24/7.
func buildOverpassQuery(lat, lon, radiusMeters float64, onlyGuard bool) string {
	around := fmt.Sprintf("(around:%.0f,%f,%f)", radiusMeters, lat, lon)

	if onlyGuard {
		return fmt.Sprintf(`[out:json][timeout:90];
(
  node["amenity"="pharmacy"]["note"~"garde"]%[1]s;
  node["amenity"="pharmacy"]["opening_hours"~"24/7"]%[1]s;
  way["amenity"="pharmacy"]["note"~"garde"]%[1]s;
  way["amenity"="pharmacy"]["opening_hours"~"24/7"]%[1]s;
);
out center;`, around)
	}

	return fmt.Sprintf(`[out:json][timeout:90];
(
  node["amenity"="pharmacy"]%[1]s;
  way["amenity"="pharmacy"]%[1]s;
);
out center;`, around)
}

// normalizePharmacy maps one raw feature into the canonical Pharmacy
// record, including the one-time distance computation from the query
// point.
func normalizePharmacy(element overpassElement, queryLat, queryLon float64) *models.Pharmacy {
	tags := element.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	elementLat, elementLon := element.Lat, element.Lon
	if element.Type == "way" && element.Center != nil {
		elementLat, elementLon = element.Center.Lat, element.Center.Lon
	}

	name := tags["name"]
	if name == "" {
		name = "Pharmacie"
	}

	distance := shared.HaversineKm(queryLat, queryLon, elementLat, elementLon)

	return &models.Pharmacy{
		ID:           fmt.Sprintf("%d", element.ID),
		Name:         name,
		Address:      formatAddress(tags),
		Phone:        firstNonEmpty(tags["phone"], tags["contact:phone"]),
		Website:      firstNonEmpty(tags["website"], tags["contact:website"]),
		Email:        firstNonEmpty(tags["email"], tags["contact:email"]),
		OpeningHours: tags["opening_hours"],
		IsGuard:      isGuardPharmacy(tags),
		IsOpen24h:    tags["opening_hours"] == "24/7",
		Lat:          elementLat,
		Lon:          elementLon,
		DistanceKm:   &distance,
	}
}

// formatAddress builds "housenumber [unit] street, postcode city" from
// structured tags, degrading through the raw addr fields, a
// "Près de <name>" hint, and finally the unavailable sentinel.
func formatAddress(tags map[string]string) string {
	var parts []string

	var street []string
	if v := tags["addr:housenumber"]; v != "" {
		street = append(street, v)
	}
	if v := tags["addr:unit"]; v != "" {
		street = append(street, v)
	}
	if v := tags["addr:street"]; v != "" {
		street = append(street, v)
	}
	if len(street) > 0 {
		parts = append(parts, strings.Join(street, " "))
	}

	var city []string
	if v := tags["addr:postcode"]; v != "" {
		city = append(city, v)
	}
	if v := tags["addr:city"]; v != "" {
		city = append(city, v)
	} else if v := tags["addr:district"]; v != "" {
		city = append(city, v)
	}
	if len(city) > 0 {
		parts = append(parts, strings.Join(city, " "))
	}

	if len(parts) == 0 {
		if v := tags["addr"]; v != "" {
			return v
		}
		if v := tags["address"]; v != "" {
			return v
		}
		if v := tags["name"]; v != "" {
			return "Près de " + v
		}
		return models.AddressUnavailable
	}

	return strings.Join(parts, ", ")
}

// isGuardPharmacy detects on-duty status from free-text note or
// description, or from literal 24/7 opening hours. A pharmacy flagged
// only by note text is a guard pharmacy but NOT open 24h; the two flags
// are deliberately asymmetric.
func isGuardPharmacy(tags map[string]string) bool {
	note := strings.ToLower(tags["note"])
	description := strings.ToLower(tags["description"])
	return strings.Contains(note, "garde") ||
		strings.Contains(description, "garde") ||
		tags["opening_hours"] == "24/7"
}

// filterByOpeningHours applies the time-of-day filter. Night runs from
// 20:00 to 08:00 local time. Guard and 24h pharmacies always pass;
// entries without opening hours are excluded at night and included by
// day; entries with opening hours go through isLikelyOpenNow.
func filterByOpeningHours(pharmacies []*models.Pharmacy, now time.Time) []*models.Pharmacy {
	hour := now.Hour()
	isNight := hour >= 20 || hour < 8

	filtered := make([]*models.Pharmacy, 0, len(pharmacies))
	for _, pharmacy := range pharmacies {
		if pharmacy.IsGuard || pharmacy.IsOpen24h {
			filtered = append(filtered, pharmacy)
			continue
		}
		if pharmacy.OpeningHours == "" {
			if !isNight {
				filtered = append(filtered, pharmacy)
			}
			continue
		}
		if isLikelyOpenNow(pharmacy.OpeningHours, now) {
			filtered = append(filtered, pharmacy)
		}
	}
	return filtered
}

// isLikelyOpenNow is the opening-hours policy. The OSM opening_hours
// grammar is not parsed; anything with hours text is treated as open.
// Kept as a named seam so a real parser can replace it without touching
// the pipeline. Tightening it changes observable filtering behavior.
func isLikelyOpenNow(openingHours string, now time.Time) bool {
	hours := strings.ToLower(openingHours)

	if strings.Contains(hours, "24/7") || strings.Contains(hours, "24h") {
		return true
	}
	if strings.Contains(hours, "mo-su") || strings.Contains(hours, "lun-dim") {
		return true
	}

	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
