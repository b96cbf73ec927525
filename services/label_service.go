package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pharmaproche/pharmacie-backend/shared"
	"github.com/sirupsen/logrus"
)

// LabelService resolves a CIP13 code into a human-readable medication
// label. The JSON reference API is tried first; when it fails, the
// public medicines database page is scraped as a fallback. Lookup never
// errors: the placeholder "CIP <code>" is the terminal fallback.
type LabelService struct {
	apiURL      string
	fallbackURL string
	client      *http.Client
}

// DefaultLabelFallbackURL is the public medicines database search page
// used when the JSON reference API is unavailable.
const DefaultLabelFallbackURL = "https://base-donnees-publique.medicaments.gouv.fr/index.php"

func NewLabelService(apiURL, fallbackURL string) *LabelService {
	return &LabelService{
		apiURL:      apiURL,
		fallbackURL: fallbackURL,
		client:      shared.NewPooledHTTPClient(10 * time.Second),
	}
}

type medicamentReference struct {
	Denomination string `json:"denomination"`
	Nom          string `json:"nom"`
	Dosage       string `json:"dosage"`
	Presentation string `json:"presentation"`
}

// Lookup returns the display label for a CIP13 code.
func (s *LabelService) Lookup(ctx context.Context, cip13 string) string {
	if label := s.lookupAPI(ctx, cip13); label != "" {
		return label
	}
	if label := s.lookupFallbackPage(ctx, cip13); label != "" {
		return label
	}
	return "CIP " + cip13
}

func (s *LabelService) lookupAPI(ctx context.Context, cip13 string) string {
	url := fmt.Sprintf("%s/%s", s.apiURL, cip13)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}

	response, err := s.client.Do(request)
	if err != nil {
		logrus.WithField("cip13", cip13).Debugf("Label API lookup failed: %v", err)
		return ""
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return ""
	}

	var reference medicamentReference
	if err := json.NewDecoder(response.Body).Decode(&reference); err != nil {
		return ""
	}

	denom := reference.Denomination
	if denom == "" {
		denom = reference.Nom
	}
	dosage := reference.Dosage
	if dosage == "" {
		dosage = reference.Presentation
	}

	switch {
	case denom != "" && dosage != "":
		return denom + " " + dosage
	case denom != "":
		return denom
	case dosage != "":
		return dosage
	}
	return ""
}

// lookupFallbackPage scrapes the public medicines database result page.
// The page is static HTML; the specialty title is carried in the result
// link or the page heading depending on whether the code resolves to a
// single presentation.
func (s *LabelService) lookupFallbackPage(ctx context.Context, cip13 string) string {
	if s.fallbackURL == "" {
		return ""
	}
	url := fmt.Sprintf("%s?page=1&affliste=0&txtCaracteres=%s", s.fallbackURL, cip13)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}

	response, err := s.client.Do(request)
	if err != nil {
		logrus.WithField("cip13", cip13).Debugf("Label fallback scrape failed: %v", err)
		return ""
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return ""
	}

	document, err := goquery.NewDocumentFromReader(response.Body)
	if err != nil {
		return ""
	}

	selectors := []string{
		"a.standart",
		".titreDenomMedicament",
		"h1.textedeno",
	}
	for _, selector := range selectors {
		if text := strings.TrimSpace(document.Find(selector).First().Text()); text != "" {
			return normalizeWhitespace(text)
		}
	}
	return ""
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
