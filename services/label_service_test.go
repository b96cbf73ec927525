package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupPrefersReferenceAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3400931111111", r.URL.Path)
		fmt.Fprint(w, `{"denomination": "DOLIPRANE", "dosage": "1000 mg"}`)
	}))
	defer server.Close()

	service := NewLabelService(server.URL, "")
	assert.Equal(t, "DOLIPRANE 1000 mg", service.Lookup(context.Background(), "3400931111111"))
}

func TestLookupUsesAlternateFieldNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"nom": "EFFERALGAN", "presentation": "8 comprimés"}`)
	}))
	defer server.Close()

	service := NewLabelService(server.URL, "")
	assert.Equal(t, "EFFERALGAN 8 comprimés", service.Lookup(context.Background(), "3400932222222"))
}

func TestLookupFallsBackToPublicDatabasePage(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer api.Close()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3400933333333", r.URL.Query().Get("txtCaracteres"))
		fmt.Fprint(w, `<html><body>
			<a class="standart">  SPASFON 80 mg,
			comprimé enrobé  </a>
		</body></html>`)
	}))
	defer page.Close()

	service := NewLabelService(api.URL, page.URL)
	assert.Equal(t, "SPASFON 80 mg, comprimé enrobé", service.Lookup(context.Background(), "3400933333333"))
}

func TestLookupPlaceholderWhenEverythingFails(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	service := NewLabelService(broken.URL, broken.URL)
	assert.Equal(t, "CIP 3400934444444", service.Lookup(context.Background(), "3400934444444"))
}
