package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
)

// DefaultGeocodeBaseURL is the Google Maps geocoding endpoint
const DefaultGeocodeBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

type Config struct {
	Port           int
	DatabaseURL    string
	SessionSecret  string
	GeocodeAPIKey  string
	GeocodeBaseURL string
	SiteURL        string
	CORSOrigins    []string
	LogLevel       string
}

// ParseFlags validates flags and sets port number
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var origins string

	fs := flag.NewFlagSet("gastroswipe", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.SiteURL, "site-url", "", "Public site base URL used in invite links")
	fs.StringVar(&origins, "cors-origins", "", "Comma separated list of allowed CORS origins")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.SessionSecret, "session-secret", "", "Session signing secret (prefer env)")
	fs.StringVar(&cfg.GeocodeAPIKey, "maps-key", "", "Google Maps API key (prefer env)")
	fs.StringVar(&cfg.GeocodeBaseURL, "geocode-url", "", "Geocoding endpoint override")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET required")
	}

	// Checked per request by the handlers that need them
	if cfg.GeocodeAPIKey == "" {
		cfg.GeocodeAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}
	if cfg.GeocodeBaseURL == "" {
		cfg.GeocodeBaseURL = os.Getenv("GEOCODE_BASE_URL")
	}
	if cfg.GeocodeBaseURL == "" {
		cfg.GeocodeBaseURL = DefaultGeocodeBaseURL
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = os.Getenv("SITE_URL")
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	if origins == "" {
		origins = os.Getenv("CORS_ORIGINS")
	}
	cfg.CORSOrigins = splitOrigins(origins)

	if cfg.LogLevel == "" {
		cfg.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, errors.New("invalid log level: " + cfg.LogLevel)
	}

	return cfg, nil
}

func splitOrigins(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
