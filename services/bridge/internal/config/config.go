// Package config loads the bridge service configuration from environment
// variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"stagebridge/pkg/ledger"
)

type Config struct {
	Port string

	PrimaryRPCURL     string
	PrimaryContract   string
	SecondaryRPCURL   string
	SecondaryContract string
	PrivateKey        string
	DefaultChain      ledger.Target

	APIKey         string
	AuthSecret     string
	SessionTTL     time.Duration
	AllowAddresses []string

	RateLimitPerMin int
	Retries         int
	Backoff         time.Duration

	LogFile     string
	DatabaseURL string
}

func Load() Config {
	return Config{
		Port: envDefault("PORT", "8787"),

		PrimaryRPCURL:     os.Getenv("PRIMARY_RPC_URL"),
		PrimaryContract:   os.Getenv("CONTRACT_ADDRESS"),
		SecondaryRPCURL:   os.Getenv("SECONDARY_RPC_URL"),
		SecondaryContract: os.Getenv("CONTRACT_ADDRESS_SECONDARY"),
		PrivateKey:        os.Getenv("PRIVATE_KEY"),
		DefaultChain:      ledger.ResolveTarget(os.Getenv("DEFAULT_CHAIN"), ledger.Secondary),

		APIKey:         os.Getenv("ORACLE_API_KEY"),
		AuthSecret:     os.Getenv("AUTH_SECRET"),
		SessionTTL:     time.Duration(envIntDefault("SESSION_TTL", 3600)) * time.Second,
		AllowAddresses: splitList(os.Getenv("ALLOW_ADDRESSES")),

		RateLimitPerMin: envIntDefault("RATE_LIMIT_PER_MIN", 60),
		Retries:         envIntDefault("RETRIES", 3),
		Backoff:         time.Duration(envIntDefault("BACKOFF_MS", 2000)) * time.Millisecond,

		LogFile:     envDefault("LOG_FILE", "history.jsonl"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
