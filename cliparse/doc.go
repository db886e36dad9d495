// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: PostgreSQL connection string (required)
  - SessionSecret: HMAC secret for session tokens (required)
  - GeocodeAPIKey: Google Maps key, checked when a geocoding route is called
  - GeocodeBaseURL: Geocoding endpoint (default: Google)
  - SiteURL: Public base URL for invite links, checked when an invite is created
  - CORSOrigins: Allowed origins (default: *)
  - LogLevel: debug, info, warn or error (default: info)

# CLI Flags

	-p                Server port
	-d                Database URL
	--session-secret  Session signing secret
	--maps-key        Google Maps API key
	--geocode-url     Geocoding endpoint override
	--site-url        Public site URL
	--cors-origins    Allowed origins, comma separated
	--log-level       Log level

# Environment Variables

Flags fall back to environment variables:

	PORT                → -p
	DATABASE_URL        → -d
	SESSION_SECRET      → --session-secret
	GOOGLE_MAPS_API_KEY → --maps-key
	GEOCODE_BASE_URL    → --geocode-url
	SITE_URL            → --site-url
	CORS_ORIGINS        → --cors-origins
	LOG_LEVEL           → --log-level

CLI flags take precedence over environment variables. main loads a .env
file (if present) before parsing.
*/
package cliparse
