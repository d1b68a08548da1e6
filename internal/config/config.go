package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// InitDB opens the postgres connection from environment variables. The handle
// is returned, never stored in a package variable; every component receives it
// at construction.
func InitDB() *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		envOr("DB_HOST", "localhost"),
		envOr("DB_USER", "postgres"),
		envOr("DB_PASSWORD", "postgres"),
		envOr("DB_NAME", "charter_recon"),
		envOr("DB_PORT", "5432"),
		envOr("DB_SSLMODE", "disable"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return db
}

// MatchProfile holds the candidate-window tolerances for one feed channel.
type MatchProfile struct {
	WindowDays      int
	AmountTolerance decimal.Decimal
}

// MatchingConfig drives the candidate generator and resolver. Tolerances are
// per-channel: card transactions settle same-day to the cent, e-transfers lag
// a few days and round, legacy manual imports drift for weeks.
type MatchingConfig struct {
	Profiles       map[string]MatchProfile
	DefaultProfile MatchProfile

	// AcceptThreshold is the minimum score for an automatic link;
	// MinMargin is the least a winner must lead the runner-up by.
	// Anything closer is ambiguous and goes to review, never guessed.
	AcceptThreshold float64
	MinMargin       float64

	// ReversalWindowDays bounds how far apart the two legs of an
	// offsetting pair may sit.
	ReversalWindowDays int

	// SampleLimit bounds how many literal before/after rows a preview
	// change-set carries.
	SampleLimit int
}

// DefaultMatchingConfig returns the shipped tolerances. These are starting
// points; the operator overrides every value per deployment via MATCH_*
// environment variables rather than editing code: MATCH_ACCEPT_THRESHOLD,
// MATCH_MIN_MARGIN, MATCH_REVERSAL_WINDOW_DAYS, and per channel
// MATCH_<CHANNEL>_WINDOW_DAYS / MATCH_<CHANNEL>_TOLERANCE (for example
// MATCH_CARD_WINDOW_DAYS=1, MATCH_ETRANSFER_TOLERANCE=5.00). The fallback
// profile reads MATCH_DEFAULT_WINDOW_DAYS / MATCH_DEFAULT_TOLERANCE.
func DefaultMatchingConfig() *MatchingConfig {
	cfg := &MatchingConfig{
		Profiles: map[string]MatchProfile{
			"card":      {WindowDays: 0, AmountTolerance: decimal.Zero},
			"etransfer": {WindowDays: 3, AmountTolerance: decimal.NewFromFloat(2.00)},
			"transfer":  {WindowDays: 3, AmountTolerance: decimal.Zero},
			"legacy":    {WindowDays: 30, AmountTolerance: decimal.NewFromFloat(1.00)},
		},
		DefaultProfile:     MatchProfile{WindowDays: 7, AmountTolerance: decimal.NewFromFloat(1.00)},
		AcceptThreshold:    75,
		MinMargin:          10,
		ReversalWindowDays: 7,
		SampleLimit:        10,
	}

	if v, ok := envFloat("MATCH_ACCEPT_THRESHOLD"); ok {
		cfg.AcceptThreshold = v
	}
	if v, ok := envFloat("MATCH_MIN_MARGIN"); ok {
		cfg.MinMargin = v
	}
	if v, ok := envInt("MATCH_REVERSAL_WINDOW_DAYS"); ok {
		cfg.ReversalWindowDays = v
	}

	for channel, p := range cfg.Profiles {
		prefix := "MATCH_" + strings.ToUpper(channel) + "_"
		if v, ok := envInt(prefix + "WINDOW_DAYS"); ok {
			p.WindowDays = v
		}
		if v, ok := envDecimal(prefix + "TOLERANCE"); ok {
			p.AmountTolerance = v
		}
		cfg.Profiles[channel] = p
	}
	if v, ok := envInt("MATCH_DEFAULT_WINDOW_DAYS"); ok {
		cfg.DefaultProfile.WindowDays = v
	}
	if v, ok := envDecimal("MATCH_DEFAULT_TOLERANCE"); ok {
		cfg.DefaultProfile.AmountTolerance = v
	}
	return cfg
}

// ProfileFor returns the tolerance profile for a feed channel.
func (c *MatchingConfig) ProfileFor(channel string) MatchProfile {
	if p, ok := c.Profiles[channel]; ok {
		return p
	}
	return c.DefaultProfile
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return 0, false
	}
	return n, true
}

func envDecimal(key string) (decimal.Decimal, bool) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return decimal.Zero, false
	}
	return d, true
}
