package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"recurring-billing/internal/config"
	"recurring-billing/internal/domain/model"
	pg "recurring-billing/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	subsPerPlan := flag.Int("subs", 10, "due subscriptions to create per plan")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	planRepo := pg.NewPlanRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)

	// If plans already exist, do nothing
	plans, err := planRepo.ListAll(ctx, nil)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(plans) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(plans))
		for _, p := range plans {
			fmt.Printf("  - %s %s (price=%s, cycle=%s, trial=%dd)\n", p.ID, p.Name, p.Price, p.Cycle, p.TrialDays)
		}
		return
	}

	seed := []struct {
		ID, Name  string
		Price     string
		Cycle     model.CycleUnit
		TrialDays int
	}{
		{"basic-monthly", "Basic", "9.99", model.CycleMonthly, 0},
		{"pro-monthly", "Pro", "29.00", model.CycleMonthly, 14},
		{"lite-weekly", "Lite", "2.50", model.CycleWeekly, 0},
		{"team-yearly", "Team", "299.00", model.CycleYearly, 30},
	}

	now := time.Now().UTC()
	created := 0
	for _, s := range seed {
		plan, err := model.NewSubscriptionPlan(s.ID, s.Name, decimal.RequireFromString(s.Price), s.Cycle, s.TrialDays)
		if err != nil {
			log.Fatalf("plan %s: %v", s.ID, err)
		}
		if err := planRepo.Save(ctx, nil, plan); err != nil {
			log.Fatalf("save plan %s: %v", s.ID, err)
		}
		fmt.Printf("plan %s saved\n", plan.ID)

		// Seeded subscriptions skip the trial so the next cycle has work to do.
		for i := 0; i < *subsPerPlan; i++ {
			sub, err := model.NewSubscription(uuid.NewString(), fmt.Sprintf("owner-%s-%03d", s.ID, i), plan, 0, now.Add(-time.Duration(i)*time.Minute))
			if err != nil {
				log.Fatalf("subscription: %v", err)
			}
			if err := subRepo.Save(ctx, nil, sub); err != nil {
				log.Fatalf("save subscription: %v", err)
			}
			created++
		}
	}
	fmt.Printf("seeded %d plans and %d due subscriptions\n", len(seed), created)
}
