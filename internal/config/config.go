// Package config provides configuration management.
//
// Configuration is loaded from environment variables (via an optional .env
// file) and can subsequently be refreshed from the `settings` table in
// PersistenceStore, which takes precedence over the environment. This lets
// the dashboard's POST /api/config/save update live thresholds without a
// restart.
//
// Config itself is an immutable value. Workers sample a Snapshot() at the
// start of each loop iteration; Store.Update swaps in a new Config behind
// an atomic pointer rather than mutating fields in place (spec §9).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ProfitFloor is one rung of the dynamic trailing take-profit table: once
// the position's peak profit (from highest_price) clears ProfitFloor, a
// pullback of TrailingPullback from that peak triggers a full exit.
type ProfitFloor struct {
	ProfitFloor      decimal.Decimal `json:"profit_floor"`
	TrailingPullback decimal.Decimal `json:"trailing_pullback"`
}

func defaultDynamicTakeProfit() []ProfitFloor {
	return []ProfitFloor{
		{ProfitFloor: decimal.NewFromFloat(0.15), TrailingPullback: decimal.NewFromFloat(0.05)},
		{ProfitFloor: decimal.NewFromFloat(0.10), TrailingPullback: decimal.NewFromFloat(0.03)},
		{ProfitFloor: decimal.NewFromFloat(0.05), TrailingPullback: decimal.NewFromFloat(0.02)},
	}
}

// SettingsStore is the narrow persistence contract Config needs, backed by
// the `settings` table (key TEXT PRIMARY KEY, value TEXT, updated_at).
type SettingsStore interface {
	Set(key, value string) error
	All() (map[string]string, error)
}

// Config holds all runtime-adjustable supervisor configuration. DataDir,
// Port, DevMode and LogLevel are process settings read from the
// environment only; every other field is set by one of the keys that
// WithField recognizes (POST /api/config/save).
type Config struct {
	DataDir  string
	Port     int
	DevMode  bool
	LogLevel string

	BrokerHost string
	BrokerPort int

	SimulationMode bool

	SingleBuyAmount             decimal.Decimal
	FirstTakeProfitRatio        decimal.Decimal
	FirstTakeProfitEnabled      bool
	FirstTakeProfitSellFraction decimal.Decimal
	ReplenishmentDrawdownRatio  decimal.Decimal
	ReplenishmentEnabled        bool
	StopLossRatio               decimal.Decimal
	StopLossEnabled             bool
	SingleStockMaxPosition      decimal.Decimal
	TotalMaxPosition            decimal.Decimal

	// DynamicTakeProfit is the ordered (highest profit_floor first) table
	// RiskEngine's trailing take-profit layer walks on every evaluation.
	DynamicTakeProfit []ProfitFloor

	AllowBuy  bool
	AllowSell bool

	// GlobalAllowBuySell is the auto-trading master switch.
	GlobalAllowBuySell bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present (godotenv.Load() errors are
// ignored, matching this lineage's tolerant-by-default startup).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DataDir:  getEnv("DATA_DIR", "./data"),
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BrokerHost: getEnv("BROKER_HOST", "127.0.0.1"),
		BrokerPort: getEnvAsInt("BROKER_PORT", 9001),

		SimulationMode: getEnvAsBool("SIMULATION_MODE", true),

		SingleBuyAmount:             decimal.NewFromFloat(getEnvAsFloat("SINGLE_BUY_AMOUNT", 5000)),
		FirstTakeProfitRatio:        decimal.NewFromFloat(getEnvAsFloat("FIRST_PROFIT_SELL", 0.05)),
		FirstTakeProfitEnabled:      getEnvAsBool("FIRST_PROFIT_SELL_ENABLED", true),
		FirstTakeProfitSellFraction: decimal.NewFromFloat(getEnvAsFloat("STOCK_GAIN_SELL_PERCENT", 0.60)),
		ReplenishmentDrawdownRatio:  decimal.NewFromFloat(getEnvAsFloat("STOP_LOSS_BUY", 0.05)),
		ReplenishmentEnabled:        getEnvAsBool("STOP_LOSS_BUY_ENABLED", false),
		StopLossRatio:               decimal.NewFromFloat(getEnvAsFloat("STOCK_STOP_LOSS", -0.07)),
		StopLossEnabled:             getEnvAsBool("STOP_LOSS_ENABLED", true),
		SingleStockMaxPosition:      decimal.NewFromFloat(getEnvAsFloat("SINGLE_STOCK_MAX_POSITION", 50000)),
		TotalMaxPosition:            decimal.NewFromFloat(getEnvAsFloat("TOTAL_MAX_POSITION", 500000)),

		DynamicTakeProfit: defaultDynamicTakeProfit(),

		AllowBuy:           getEnvAsBool("ALLOW_BUY", true),
		AllowSell:          getEnvAsBool("ALLOW_SELL", true),
		GlobalAllowBuySell: getEnvAsBool("GLOBAL_ALLOW_BUY_SELL", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for internal consistency.
func (c Config) Validate() error {
	positives := []struct {
		field string
		value decimal.Decimal
	}{
		{"singleBuyAmount", c.SingleBuyAmount},
		{"firstProfitSell", c.FirstTakeProfitRatio},
		{"stopLossBuy", c.ReplenishmentDrawdownRatio},
		{"singleStockMaxPosition", c.SingleStockMaxPosition},
		{"totalMaxPosition", c.TotalMaxPosition},
	}
	for _, p := range positives {
		if !p.value.IsPositive() {
			return &fieldError{p.field, "must be > 0"}
		}
	}
	if c.FirstTakeProfitSellFraction.IsNegative() || c.FirstTakeProfitSellFraction.GreaterThan(decimal.NewFromInt(1)) {
		return &fieldError{"stockGainSellPencent", "must be in [0, 1]"}
	}
	if c.StopLossRatio.IsPositive() {
		return &fieldError{"stockStopLoss", "must be <= 0"}
	}
	return nil
}

// WithField returns a copy of c with one recognized key applied, validating
// as it goes. On error c is returned unchanged (spec §7: validation errors
// have no side effects).
func (c Config) WithField(key, value string) (Config, error) {
	orig := c
	switch key {
	case "singleBuyAmount":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.SingleBuyAmount = d
	case "firstProfitSell":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.FirstTakeProfitRatio = d
	case "firstProfitSellEnabled":
		c.FirstTakeProfitEnabled = isTruthy(value)
	case "stockGainSellPencent":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.FirstTakeProfitSellFraction = d
	case "allowBuy":
		c.AllowBuy = isTruthy(value)
	case "allowSell":
		c.AllowSell = isTruthy(value)
	case "stopLossBuy":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.ReplenishmentDrawdownRatio = d
	case "stopLossBuyEnabled":
		c.ReplenishmentEnabled = isTruthy(value)
	case "stockStopLoss":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.StopLossRatio = d
	case "StopLossEnabled":
		c.StopLossEnabled = isTruthy(value)
	case "singleStockMaxPosition":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.SingleStockMaxPosition = d
	case "totalMaxPosition":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return c, &fieldError{key, "must be numeric"}
		}
		c.TotalMaxPosition = d
	case "dynamicTakeProfit":
		var table []ProfitFloor
		if err := json.Unmarshal([]byte(value), &table); err != nil {
			return c, &fieldError{key, "must be a JSON array of {profit_floor, trailing_pullback}"}
		}
		sort.Slice(table, func(i, j int) bool { return table[i].ProfitFloor.GreaterThan(table[j].ProfitFloor) })
		c.DynamicTakeProfit = table
	case "connectPort":
		n, err := strconv.Atoi(value)
		if err != nil {
			return c, &fieldError{key, "must be an integer"}
		}
		c.BrokerPort = n
	case "totalAccounts":
		c.BrokerHost = value
	case "globalAllowBuySell":
		c.GlobalAllowBuySell = isTruthy(value)
	case "simulationMode":
		c.SimulationMode = isTruthy(value)
	default:
		// Unknown keys are ignored rather than rejected, so forward-
		// compatible dashboards can send extra fields.
	}
	if err := c.Validate(); err != nil {
		return orig, err
	}
	return c, nil
}

// Store holds the live Config behind an atomic pointer so concurrent
// readers never observe a torn write, and so every worker's in-flight loop
// keeps using the snapshot it started with (spec §9).
type Store struct {
	ptr     atomic.Pointer[Config]
	backing SettingsStore
}

// NewStore creates a Store seeded with the initial config.
func NewStore(initial Config, backing SettingsStore) *Store {
	s := &Store{backing: backing}
	s.ptr.Store(&initial)
	return s
}

// Snapshot returns the config workers should use for the loop iteration
// they are about to start.
func (s *Store) Snapshot() Config {
	return *s.ptr.Load()
}

// UpdateFromSettings refreshes the live config from the settings table,
// which takes precedence over whatever was loaded from the environment.
func (s *Store) UpdateFromSettings(all map[string]string) error {
	cur := s.Snapshot()
	for k, v := range all {
		if v == "" {
			continue
		}
		next, err := cur.WithField(k, v)
		if err != nil {
			return fmt.Errorf("settings table holds invalid %s: %w", k, err)
		}
		cur = next
	}
	s.ptr.Store(&cur)
	return nil
}

// Update applies a partial set of config keys (POST /api/config/save) and
// persists them to the settings table. Validation failures leave the live
// config untouched.
func (s *Store) Update(fields map[string]string) error {
	cur := s.Snapshot()
	for k, v := range fields {
		next, err := cur.WithField(k, v)
		if err != nil {
			return err
		}
		cur = next
	}
	if s.backing != nil {
		for k, v := range fields {
			if err := s.backing.Set(k, v); err != nil {
				return fmt.Errorf("failed to persist setting %s: %w", k, err)
			}
		}
	}
	s.ptr.Store(&cur)
	return nil
}

type fieldError struct {
	field, msg string
}

func (e *fieldError) Error() string { return e.field + ": " + e.msg }

func isTruthy(v string) bool { return v == "true" || v == "1" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
