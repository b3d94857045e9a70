package grid

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

// TemplateStore persists user-defined RiskTemplates to the risk_templates
// table, grounded on the same database/sql + ON CONFLICT upsert idiom as
// Store and positions.SQLStore.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore wraps an already-migrated *sql.DB.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Presets returns the three built-in risk-level bundles named in spec §6
// (GET /api/grid/risk-templates). These are not persisted; they are the
// starting point a user clones into a named template.
func Presets() map[domain.RiskLevel]domain.GridConfig {
	return map[domain.RiskLevel]domain.GridConfig{
		domain.RiskAggressive: {
			PriceIntervalFrac: decimal.NewFromFloat(0.03),
			PositionRatio:     decimal.NewFromFloat(0.30),
			CallbackRatio:     decimal.NewFromFloat(0.003),
			MaxInvestment:     decimal.NewFromInt(50000),
			MaxDeviation:      decimal.NewFromFloat(0.15),
			TargetProfit:      decimal.NewFromFloat(0.20),
			StopLoss:          decimal.NewFromFloat(-0.10),
			RiskLevel:         domain.RiskAggressive,
		},
		domain.RiskModerate: {
			PriceIntervalFrac: decimal.NewFromFloat(0.02),
			PositionRatio:     decimal.NewFromFloat(0.20),
			CallbackRatio:     decimal.NewFromFloat(0.005),
			MaxInvestment:     decimal.NewFromInt(30000),
			MaxDeviation:      decimal.NewFromFloat(0.10),
			TargetProfit:      decimal.NewFromFloat(0.12),
			StopLoss:          decimal.NewFromFloat(-0.07),
			RiskLevel:         domain.RiskModerate,
		},
		domain.RiskConservative: {
			PriceIntervalFrac: decimal.NewFromFloat(0.01),
			PositionRatio:     decimal.NewFromFloat(0.10),
			CallbackRatio:     decimal.NewFromFloat(0.008),
			MaxInvestment:     decimal.NewFromInt(15000),
			MaxDeviation:      decimal.NewFromFloat(0.06),
			TargetProfit:      decimal.NewFromFloat(0.08),
			StopLoss:          decimal.NewFromFloat(-0.04),
			RiskLevel:         domain.RiskConservative,
		},
	}
}

// Save upserts a named template.
func (t *TemplateStore) Save(ctx context.Context, tpl domain.RiskTemplate) error {
	const query = `
		INSERT INTO risk_templates
			(name, description, price_interval, position_ratio, callback_ratio,
			 max_investment, max_deviation, target_profit, stop_loss, risk_level,
			 is_default, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			price_interval = excluded.price_interval,
			position_ratio = excluded.position_ratio,
			callback_ratio = excluded.callback_ratio,
			max_investment = excluded.max_investment,
			max_deviation = excluded.max_deviation,
			target_profit = excluded.target_profit,
			stop_loss = excluded.stop_loss,
			risk_level = excluded.risk_level,
			is_default = excluded.is_default
	`
	_, err := t.db.ExecContext(ctx, query,
		tpl.Name, tpl.Description,
		tpl.Config.PriceIntervalFrac.String(), tpl.Config.PositionRatio.String(), tpl.Config.CallbackRatio.String(),
		tpl.Config.MaxInvestment.String(), tpl.Config.MaxDeviation.String(), tpl.Config.TargetProfit.String(),
		tpl.Config.StopLoss.String(), string(tpl.Config.RiskLevel),
		boolToInt(tpl.IsDefault), tpl.UsageCount,
	)
	if err != nil {
		return fmt.Errorf("save template %s: %w", tpl.Name, err)
	}
	return nil
}

// Delete removes a named template.
func (t *TemplateStore) Delete(ctx context.Context, name string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM risk_templates WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", name, err)
	}
	return nil
}

// Get fetches one named template.
func (t *TemplateStore) Get(ctx context.Context, name string) (domain.RiskTemplate, bool, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT name, description, price_interval, position_ratio, callback_ratio,
		       max_investment, max_deviation, target_profit, stop_loss, risk_level,
		       is_default, usage_count
		FROM risk_templates WHERE name = ?
	`, name)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return domain.RiskTemplate{}, false, nil
	}
	if err != nil {
		return domain.RiskTemplate{}, false, fmt.Errorf("get template %s: %w", name, err)
	}
	return tpl, true, nil
}

// List returns every persisted template, ordered by name.
func (t *TemplateStore) List(ctx context.Context) ([]domain.RiskTemplate, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT name, description, price_interval, position_ratio, callback_ratio,
		       max_investment, max_deviation, target_profit, stop_loss, risk_level,
		       is_default, usage_count
		FROM risk_templates ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanTemplate(row rowScanner) (domain.RiskTemplate, error) {
	var tpl domain.RiskTemplate
	var riskLevel string
	var priceInterval, positionRatio, callbackRatio string
	var maxInvestment, maxDeviation, targetProfit, stopLoss string
	var isDefault int

	err := row.Scan(
		&tpl.Name, &tpl.Description, &priceInterval, &positionRatio, &callbackRatio,
		&maxInvestment, &maxDeviation, &targetProfit, &stopLoss, &riskLevel,
		&isDefault, &tpl.UsageCount,
	)
	if err != nil {
		return tpl, err
	}
	tpl.IsDefault = isDefault != 0
	tpl.Config = domain.GridConfig{
		PriceIntervalFrac: decimalOrZero(priceInterval),
		PositionRatio:     decimalOrZero(positionRatio),
		CallbackRatio:     decimalOrZero(callbackRatio),
		MaxInvestment:     decimalOrZero(maxInvestment),
		MaxDeviation:      decimalOrZero(maxDeviation),
		TargetProfit:      decimalOrZero(targetProfit),
		StopLoss:          decimalOrZero(stopLoss),
		RiskLevel:         domain.RiskLevel(riskLevel),
	}
	return tpl, nil
}
