package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-booking-saga/internal/config"
	"github.com/hackgods/appointment-booking-saga/internal/db"
	"github.com/hackgods/appointment-booking-saga/internal/logger"
	"github.com/hackgods/appointment-booking-saga/internal/provider"
)

// specialty -> service name shown on the provider record
var specialties = map[string]string{
	"cardio":     "Cardiology",
	"dermato":    "Dermatology",
	"generalist": "General Practice",
	"ortho":      "Orthopedics",
	"endocrino":  "Endocrinology",
	"neuro":      "Neurology",
	"pediatrics": "Pediatrics",
	"psychiatry": "Psychiatry",
	"ophthalmo":  "Ophthalmology",
	"ent":        "ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, "seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	count := 100
	if v := os.Getenv("SEED_PROVIDERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, provider.Schema); err != nil {
		log.Fatal("schema migration error", zap.Error(err))
	}

	repo := provider.NewPgRepository(pool)
	if err := seedProviders(ctx, repo, count); err != nil {
		log.Fatal("seed providers", zap.Error(err))
	}

	log.Info("seed complete", zap.Int("providers", count))
}

// seedProviders makes sure every specialty has at least one available
// provider, then fills the rest randomly with roughly 80% available.
func seedProviders(ctx context.Context, repo provider.Repository, count int) error {
	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	keys := make([]string, 0, len(specialties))
	for k := range specialties {
		keys = append(keys, k)
	}

	for i := 0; i < count; i++ {
		specialty := keys[i%len(keys)]
		if i >= len(keys) {
			specialty = keys[faker.IntN(len(keys))]
		}

		first, last := faker.FirstName(), faker.LastName()
		p := provider.Provider{
			Name:      "Dr. " + first + " " + last,
			Email:     strings.ToLower(fmt.Sprintf("%s.%s.%d@clinic.example", first, last, i)),
			Specialty: specialty,
			Service:   specialties[specialty],
			Available: i < len(keys) || faker.Float64() < 0.8,
		}
		if _, err := repo.Create(ctx, p); err != nil {
			return fmt.Errorf("provider %d: %w", i, err)
		}
	}
	return nil
}
