package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/app"
	"github.com/hackgods/therapy-scheduling/internal/auth"
	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/config"
	"github.com/hackgods/therapy-scheduling/internal/db"
	"github.com/hackgods/therapy-scheduling/internal/link"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

func main() {
	therapists := flag.Int("therapists", 10, "number of therapists to create")
	clientsPer := flag.Int("clients", 5, "clients linked to each therapist")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of printed dev tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("seed starting", zap.Int("therapists", *therapists), zap.Int("clients_per_therapist", *clientsPer))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.DefaultPoolOptions)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gofakeit.Seed(0)

	gate := access.NewGate()
	users := user.NewPgRepository(pool)
	schedules := availability.NewService(availability.NewPgRepository(pool, cfg.TxTimeout), gate, logger)
	links := link.NewService(link.NewPgRepository(pool), users, gate, logger)

	owner, err := users.Create(ctx, gofakeit.Name(), gofakeit.Email(), access.RoleOwner)
	if err != nil {
		logger.Fatal("create owner", zap.Error(err))
	}
	printToken(cfg.JWTSecret, owner, *tokenTTL)

	for i := 0; i < *therapists; i++ {
		role := access.RoleTherapist
		if i%4 == 3 {
			role = access.RoleIntern
		}

		t, err := users.Create(ctx, gofakeit.Name(), gofakeit.Email(), role)
		if err != nil {
			logger.Fatal("create therapist", zap.Error(err))
		}
		caller := access.Caller{ID: t.ID, Role: t.Role}

		n, err := schedules.SetWeeklySchedule(ctx, caller, weeklySchedule())
		if err != nil {
			logger.Fatal("set schedule", zap.Stringer("therapist_id", t.ID), zap.Error(err))
		}

		for j := 0; j < *clientsPer; j++ {
			c, err := users.Create(ctx, gofakeit.Name(), gofakeit.Email(), access.RoleClient)
			if err != nil {
				logger.Fatal("create client", zap.Error(err))
			}
			if _, err := links.Link(ctx, caller, t.ID, c.Email); err != nil {
				logger.Fatal("link client", zap.Error(err))
			}
			if i == 0 {
				printToken(cfg.JWTSecret, c, *tokenTTL)
			}
		}

		if i == 0 {
			printToken(cfg.JWTSecret, t, *tokenTTL)
		}
		logger.Info("therapist seeded", zap.Stringer("therapist_id", t.ID), zap.Int("slots", n))
	}

	logger.Info("seed complete")
}

// weeklySchedule returns a random weekday schedule: office hours on two to
// five weekdays, sometimes with an evening window.
func weeklySchedule() []availability.SlotInput {
	var inputs []availability.SlotInput
	start := gofakeit.Number(7, 10)
	end := gofakeit.Number(15, 18)

	for day := 1; day <= 5; day++ {
		if gofakeit.Number(0, 4) == 0 {
			continue
		}
		inputs = append(inputs, availability.SlotInput{
			Weekday:   day,
			StartTime: fmt.Sprintf("%02d:00", start),
			EndTime:   fmt.Sprintf("%02d:00", end),
		})
		if gofakeit.Bool() {
			inputs = append(inputs, availability.SlotInput{Weekday: day, StartTime: "19:00", EndTime: "21:30"})
		}
	}
	if len(inputs) == 0 {
		inputs = append(inputs, availability.SlotInput{Weekday: 1, StartTime: "09:00", EndTime: "17:00"})
	}
	return inputs
}

func printToken(secret string, u *user.User, ttl time.Duration) {
	tok, err := auth.Sign(secret, u.ID, u.Email, u.Role, ttl)
	if err != nil {
		fmt.Printf("# could not sign token for %s: %v\n", u.ID, err)
		return
	}
	fmt.Printf("%-26s %s %s\n", u.Role, u.ID, tok)
}
