/*
seed.go - Demo roster loader

PURPOSE:
  Populates the database with a small emergency department: six doctors and
  two weeks of three-shift coverage starting tomorrow. Useful for demos and
  for exercising the API by hand.
*/
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/roster-engine/config"
	"github.com/warp/roster-engine/roster"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo roster into the database",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	store, _, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	doctors := []*roster.Doctor{
		{ID: "dr-ahmed", Name: "Ahmed Hassan", Department: "Emergency"},
		{ID: "dr-sara", Name: "Sara Al-Otaibi", Department: "Emergency"},
		{ID: "dr-omar", Name: "Omar Khalid", Department: "Emergency"},
		{ID: "dr-lina", Name: "Lina Farouk", Department: "Emergency"},
		{ID: "dr-yusuf", Name: "Yusuf Rahman", Department: "Emergency"},
		{ID: "dr-maha", Name: "Maha Saleh", Department: "Emergency"},
	}
	for _, d := range doctors {
		d.CreatedAt = time.Now()
		if err := store.PutDoctor(ctx, d); err != nil {
			return err
		}
	}

	// Two weeks of three-shift coverage starting tomorrow, rotating through
	// the six doctors so each slot has exactly one.
	shifts := []roster.Shift{roster.ShiftMorning, roster.ShiftEvening, roster.ShiftNight}
	start := roster.DateOf(time.Now(), loc).AddDays(1)
	slot := 0
	for day := 0; day < 14; day++ {
		date := start.AddDays(day)
		for _, shift := range shifts {
			doctor := doctors[slot%len(doctors)]
			duty := &roster.DutyAssignment{
				ID:             roster.DutyID(fmt.Sprintf("duty-%s-%s", date, shift)),
				DoctorID:       doctor.ID,
				Date:           date,
				Shift:          shift,
				IsReferralDuty: shift == roster.ShiftNight && day%7 == 5,
			}
			if err := store.PutDuty(ctx, duty); err != nil {
				return err
			}
			slot++
		}
	}

	log.Info("seeded demo roster",
		zap.Int("doctors", len(doctors)),
		zap.Int("days", 14),
		zap.String("first_day", start.String()))
	return nil
}
