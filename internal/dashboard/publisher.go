// Package dashboard turns ledger state into the monthly snapshot and ships
// it to the notification sink.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/ledger"
	"github.com/fintally/tally/internal/models"
)

// Publisher computes monthly snapshots and publishes them. Compute is
// deterministic given its arguments; all side effects live in Publish.
type Publisher struct {
	budget      decimal.Decimal
	artifactDir string
	sinkURL     string
	client      *http.Client
	log         *slog.Logger
}

// Config wires a Publisher. ArtifactDir and SinkURL are optional; empty
// values disable rendering and sink publication respectively.
type Config struct {
	Budget      decimal.Decimal
	ArtifactDir string
	SinkURL     string
	Client      *http.Client
	Logger      *slog.Logger
}

// New builds a Publisher.
func New(cfg Config) *Publisher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		budget:      cfg.Budget,
		artifactDir: cfg.ArtifactDir,
		sinkURL:     cfg.SinkURL,
		client:      cfg.Client,
		log:         cfg.Logger,
	}
}

// Compute derives the snapshot for one calendar month from the ledger.
func (p *Publisher) Compute(l *ledger.Ledger, month time.Time, partnerBalance decimal.Decimal, now time.Time) *models.MonthlySnapshot {
	b := l.Breakdown(month)
	snap := &models.MonthlySnapshot{
		Month:               month,
		TotalSpend:          b.Spend,
		MonthlyIncome:       b.Income,
		MonthlyHousing:      b.Housing,
		MonthlySavings:      b.Savings,
		MonthlyAdjustments:  b.Adjustments,
		Budget:              p.budget,
		BudgetRemaining:     p.budget.Sub(b.Spend),
		PercentThroughMonth: percentThroughMonth(month, now),
		// Projection assumes the full budget gets spent: whatever income
		// clears housing and budget is headed for savings at month end.
		ProjectedSavings: b.Income.Sub(b.Housing).Sub(p.budget),
		PartnerBalance:   partnerBalance,
		AccountBalances:  l.Balances(),
		GeneratedAt:      now,
	}
	if p.artifactDir != "" {
		snap.ArtifactRef = filepath.Join(p.artifactDir, month.Format("2006-01")+".svg")
	}
	return snap
}

// percentThroughMonth is how far now is through the month, clamped to [0, 1].
func percentThroughMonth(month, now time.Time) float64 {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	switch {
	case now.Before(start):
		return 0
	case !now.Before(end):
		return 1
	}
	return float64(now.Sub(start)) / float64(end.Sub(start))
}

// Publish renders the snapshot artifact and pushes the snapshot to the
// notification sink. Fire-and-forget: failures are logged, never returned.
func (p *Publisher) Publish(ctx context.Context, snap *models.MonthlySnapshot) {
	if snap.ArtifactRef != "" {
		if err := p.renderArtifact(snap); err != nil {
			p.log.Warn("Failed to render snapshot artifact", "path", snap.ArtifactRef, "error", err)
		}
	}
	if p.sinkURL == "" {
		return
	}
	if err := p.notify(ctx, snap); err != nil {
		p.log.Warn("Failed to publish snapshot to sink", "url", p.sinkURL, "error", err)
	}
}

func (p *Publisher) renderArtifact(snap *models.MonthlySnapshot) error {
	if err := os.MkdirAll(filepath.Dir(snap.ArtifactRef), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	svg := renderSVG(snap)
	if err := os.WriteFile(snap.ArtifactRef, []byte(svg), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// sinkPayload is the wire shape the notification sink accepts.
type sinkPayload struct {
	Month               string            `json:"month"`
	TotalSpend          decimal.Decimal   `json:"total_spend"`
	MonthlyIncome       decimal.Decimal   `json:"monthly_income"`
	MonthlyHousing      decimal.Decimal   `json:"monthly_housing"`
	MonthlySavings      decimal.Decimal   `json:"monthly_savings"`
	Budget              decimal.Decimal   `json:"budget"`
	BudgetRemaining     decimal.Decimal   `json:"budget_remaining"`
	PercentThroughMonth float64           `json:"percent_through_month"`
	ProjectedSavings    decimal.Decimal   `json:"projected_savings"`
	PartnerBalance      decimal.Decimal   `json:"partner_balance"`
	AccountBalances     map[string]string `json:"account_balances"`
	ArtifactRef         string            `json:"artifact_ref,omitempty"`
	GeneratedAt         time.Time         `json:"generated_at"`
}

func (p *Publisher) notify(ctx context.Context, snap *models.MonthlySnapshot) error {
	balances := make(map[string]string, len(snap.AccountBalances))
	for name, bal := range snap.AccountBalances {
		balances[name] = bal.String()
	}
	body, err := json.Marshal(sinkPayload{
		Month:               snap.Month.Format("2006-01"),
		TotalSpend:          snap.TotalSpend,
		MonthlyIncome:       snap.MonthlyIncome,
		MonthlyHousing:      snap.MonthlyHousing,
		MonthlySavings:      snap.MonthlySavings,
		Budget:              snap.Budget,
		BudgetRemaining:     snap.BudgetRemaining,
		PercentThroughMonth: snap.PercentThroughMonth,
		ProjectedSavings:    snap.ProjectedSavings,
		PartnerBalance:      snap.PartnerBalance,
		AccountBalances:     balances,
		ArtifactRef:         snap.ArtifactRef,
		GeneratedAt:         snap.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sinkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sink returned status %d", resp.StatusCode)
	}
	return nil
}
