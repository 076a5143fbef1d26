package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teamdiff/draft-backend/internal/catalog"
)

type Config struct {
	Port        string
	ChampionURL string
	DatabaseURL string
	WSOrigins   []string
	LogDev      bool

	TurnTimeout     time.Duration
	GraceDisconnect time.Duration
	GraceLeave      time.Duration
}

// Load reads configuration from the environment, after merging in a .env
// file if one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        getenv("PORT", "8080"),
		ChampionURL: getenv("CHAMPION_URL", catalog.DefaultURL),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WSOrigins:   getlist("WS_ORIGINS"),
		LogDev:      os.Getenv("LOG_DEV") == "1",

		TurnTimeout:     getdur("TURN_TIMEOUT", 30*time.Second),
		GraceDisconnect: getdur("GRACE_DISCONNECT", 10*time.Second),
		GraceLeave:      getdur("GRACE_LEAVE", 60*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getlist splits a comma-separated env value; unset means same-origin
// handshakes only.
func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getdur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
