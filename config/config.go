/*
Package config loads rosterd's configuration.

PURPOSE:
  One TOML file drives the whole binary: HTTP listener, database path, and
  the scheduling policy knobs (concurrency cap, annual allotment, facility
  timezone, shift cutoffs). Defaults are baked in so a missing file still
  yields a runnable server.

EXAMPLE (rosterd.toml):

  [server]
  listen = ":8080"
  cors_origins = ["http://localhost:5173"]

  [database]
  path = "./data/roster.db"

  [scheduling]
  concurrency_cap = 2
  annual_allotment_days = 45
  timezone = "Asia/Riyadh"

  [scheduling.shift_cutoffs]
  morning = 7
  evening = 15
  night = 23
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/warp/roster-engine/roster"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Scheduling SchedulingConfig `toml:"scheduling"`
}

type ServerConfig struct {
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type SchedulingConfig struct {
	ConcurrencyCap      int            `toml:"concurrency_cap"`
	AnnualAllotmentDays int            `toml:"annual_allotment_days"`
	Timezone            string         `toml:"timezone"`
	ShiftCutoffs        map[string]int `toml:"shift_cutoffs"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:      ":8080",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Path: "roster.db",
		},
		Scheduling: SchedulingConfig{
			ConcurrencyCap:      roster.DefaultConcurrencyCap,
			AnnualAllotmentDays: 45,
			Timezone:            "UTC",
			ShiftCutoffs: map[string]int{
				string(roster.ShiftMorning): 7,
				string(roster.ShiftEvening): 15,
				string(roster.ShiftNight):   23,
			},
		},
	}
}

// Load reads the TOML file at path, layered over Default(). A missing file
// is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Scheduling.ConcurrencyCap < 1 {
		return fmt.Errorf("scheduling.concurrency_cap must be >= 1, got %d", c.Scheduling.ConcurrencyCap)
	}
	if c.Scheduling.AnnualAllotmentDays < 0 {
		return fmt.Errorf("scheduling.annual_allotment_days must be >= 0, got %d", c.Scheduling.AnnualAllotmentDays)
	}
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		return fmt.Errorf("scheduling.timezone: %w", err)
	}
	for name, hour := range c.Scheduling.ShiftCutoffs {
		if !roster.Shift(name).Valid() {
			return fmt.Errorf("scheduling.shift_cutoffs: unknown shift %q", name)
		}
		if hour < 0 || hour > 23 {
			return fmt.Errorf("scheduling.shift_cutoffs.%s: hour %d out of range", name, hour)
		}
	}
	return nil
}

// Location resolves the configured facility timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Scheduling.Timezone)
}

// Cutoffs converts the configured cutoff hours to the resolver's shape.
func (c Config) Cutoffs() map[roster.Shift]int {
	if len(c.Scheduling.ShiftCutoffs) == 0 {
		return roster.DefaultCutoffs
	}
	out := make(map[roster.Shift]int, len(c.Scheduling.ShiftCutoffs))
	for name, hour := range c.Scheduling.ShiftCutoffs {
		out[roster.Shift(name)] = hour
	}
	return out
}

// Allotment returns the annual grant as a decimal day count.
func (c Config) Allotment() decimal.Decimal {
	return decimal.NewFromInt(int64(c.Scheduling.AnnualAllotmentDays))
}
