package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pharmaproche/pharmacie-backend/models"
	"github.com/pharmaproche/pharmacie-backend/shared"
	"github.com/sirupsen/logrus"
)

// Address completeness: a street-type keyword plus either a 5-digit
// postcode or a compound French place name.
var (
	streetPattern = regexp.MustCompile(`(?i)\d+.*rue|avenue|boulevard|place|impasse|chemin`)
	cityPattern   = regexp.MustCompile(`(?i)\d{5}|\w+ville|\w+sur\w+`)
)

// AddressEnricher upgrades incomplete pharmacy addresses after the
// search result has already been returned. The pass is fully serialized
// and paced so the reverse-geocoding endpoint never sees bursts.
type AddressEnricher struct {
	geocodeURL string
	client     *http.Client
	limiter    *shared.OutboundRateLimiter
}

// NewAddressEnricher creates an enricher against the GeoPF reverse
// geocoding endpoint with the given pacing between calls.
func NewAddressEnricher(geocodeURL string, pacing time.Duration) *AddressEnricher {
	return &AddressEnricher{
		geocodeURL: geocodeURL,
		client:     shared.NewPooledHTTPClient(10 * time.Second),
		limiter:    shared.NewOutboundRateLimiter(pacing),
	}
}

// Run patches incomplete addresses in place, one geocoding call per
// entry. Failures leave the original address untouched; nothing is ever
// reported back to the search caller.
func (e *AddressEnricher) Run(ctx context.Context, pharmacies []*models.Pharmacy) {
	logger := logrus.WithField("component", "AddressEnricher")

	improved := 0
	for _, pharmacy := range pharmacies {
		if IsCompleteAddress(pharmacy.Address) {
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return
		}

		address, err := e.ReverseGeocode(ctx, pharmacy.Lat, pharmacy.Lon)
		if err != nil {
			logger.WithField("pharmacy_id", pharmacy.ID).Warnf("Address enrichment failed: %v", err)
			continue
		}
		if address == "" || address == models.AddressUnknown {
			continue
		}

		pharmacy.Address = address
		improved++
	}

	if improved > 0 {
		logger.WithFields(logrus.Fields{
			"improved": improved,
			"total":    len(pharmacies),
		}).Info("Background address enrichment completed")
	}
}

// IsCompleteAddress reports whether an address already carries a street
// and a city or postcode and therefore needs no geocoding call.
func IsCompleteAddress(address string) bool {
	return streetPattern.MatchString(address) && cityPattern.MatchString(address)
}

type geocodeFeatureCollection struct {
	Features []struct {
		Properties geocodeProperties `json:"properties"`
	} `json:"features"`
}

type geocodeProperties struct {
	HouseNumber string `json:"housenumber"`
	Street      string `json:"street"`
	Name        string `json:"name"`
	Postcode    string `json:"postcode"`
	City        string `json:"city"`
	Label       string `json:"label"`
}

// ReverseGeocode resolves a position into a formatted French address,
// returning the AddressUnknown sentinel when the endpoint has no match.
func (e *AddressEnricher) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	url := fmt.Sprintf("%s/reverse?lat=%f&lon=%f&index=address&limit=1", e.geocodeURL, lat, lon)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	response, err := e.client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocoding returned HTTP %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}

	var collection geocodeFeatureCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return "", fmt.Errorf("failed to decode geocoding response: %w", err)
	}

	if len(collection.Features) == 0 {
		return models.AddressUnknown, nil
	}
	return formatGeocodedAddress(collection.Features[0].Properties), nil
}

func formatGeocodedAddress(properties geocodeProperties) string {
	var parts []string

	switch {
	case properties.HouseNumber != "" && properties.Street != "":
		parts = append(parts, properties.HouseNumber+" "+properties.Street)
	case properties.Street != "":
		parts = append(parts, properties.Street)
	case properties.Name != "":
		parts = append(parts, properties.Name)
	}

	var city []string
	if properties.Postcode != "" {
		city = append(city, properties.Postcode)
	}
	if properties.City != "" {
		city = append(city, properties.City)
	}
	if len(city) > 0 {
		parts = append(parts, strings.Join(city, " "))
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if properties.Label != "" {
		return properties.Label
	}
	return models.AddressUnknown
}
