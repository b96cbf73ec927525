package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort        string
	DatabaseURL       string
	NewsAPIKey        string
	OverpassURL       string
	GeocodeURL        string
	MedicamDatasetURL string
	MedicamentsAPIURL string
	NewsAPIURL        string
	CacheDir          string
	Timezone          string
	LogLevel          string
}

// DefaultGeocodePacing is the minimum delay between reverse-geocoding
// calls. The GeoPF endpoint throttles aggressive clients, so the address
// enricher is deliberately serialized at this rate.
const DefaultGeocodePacing = 200 * time.Millisecond

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		NewsAPIKey:        getEnv("NEWSAPI_KEY", ""),
		OverpassURL:       getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		GeocodeURL:        getEnv("GEOCODE_URL", "https://data.geopf.fr/geocodage"),
		MedicamDatasetURL: getEnv("MEDICAM_DATASET_URL", "https://www.data.gouv.fr/api/1/datasets/medicaments-rembourses-par-lassurance-maladie/"),
		MedicamentsAPIURL: getEnv("MEDICAMENTS_API_URL", "https://api-medicaments.fr/v1/medicaments"),
		NewsAPIURL:        getEnv("NEWSAPI_URL", "https://newsapi.org/v2"),
		CacheDir:          getEnv("CACHE_DIR", "cache"),
		Timezone:          getEnv("TIMEZONE", "Europe/Paris"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// Location resolves the configured timezone used for daily cache keys.
// Falls back to the host-local zone when the name cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logrus.Warnf("Invalid TIMEZONE value %q, falling back to host-local time", c.Timezone)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
