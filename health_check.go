//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pharmaproche/pharmacie-backend/config"
	"github.com/pharmaproche/pharmacie-backend/services"
)

func main() {
	fmt.Printf("Pharmacie backend health check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	healthScore := 0
	totalTests := 3

	// Test 1: Overpass interpreter
	fmt.Print("Overpass API: ")
	clock := services.NewSystemClock(cfg.Location())
	overpass := services.NewOverpassService(
		services.NewDefaultOverpassServiceConfiguration(cfg.OverpassURL),
		nil,
		clock,
	)
	// Small probe around Paris city center.
	if results := overpass.Search(ctx, 48.8566, 2.3522, 1, false, false); len(results) > 0 {
		fmt.Printf("OK (%d pharmacies)\n", len(results))
		healthScore++
	} else {
		fmt.Println("FAILED (no results)")
	}

	// Test 2: Medic'AM dataset metadata
	fmt.Print("Medic'AM dataset: ")
	medicam := services.NewMedicamService(cfg.MedicamDatasetURL)
	if latest, previous, err := medicam.DiscoverLatestResources(ctx); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else {
		fmt.Printf("OK (%s / %s)\n", latest.Title, previous.Title)
		healthScore++
	}

	// Test 3: Cache directory writability
	fmt.Print("Cache directory: ")
	probe := filepath.Join(cfg.CacheDir, ".healthcheck")
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else {
		os.Remove(probe)
		fmt.Println("OK")
		healthScore++
	}

	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	switch {
	case healthScore == totalTests:
		fmt.Printf("SYSTEM HEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	case healthScore >= totalTests/2:
		fmt.Printf("SYSTEM DEGRADED: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	default:
		fmt.Printf("SYSTEM UNHEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}
}
