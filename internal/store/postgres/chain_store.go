package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ChainStore implements domain.ChainStore using PostgreSQL. Leg fills are
// kept in a JSONB column alongside the execution row.
type ChainStore struct {
	pool *pgxpool.Pool
}

// NewChainStore creates a new ChainStore.
func NewChainStore(pool *pgxpool.Pool) *ChainStore {
	return &ChainStore{pool: pool}
}

// fillRow is the JSON shape of one leg fill.
type fillRow struct {
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	OrderID   string `json:"order_id"`
	Price     string `json:"price"`
	BaseQty   string `json:"base_qty"`
	QuoteQty  string `json:"quote_qty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func encodeFills(fills []domain.LegFill) ([]byte, error) {
	rows := make([]fillRow, len(fills))
	for i, f := range fills {
		rows[i] = fillRow{
			Symbol:    f.Symbol,
			Direction: string(f.Direction),
			OrderID:   f.OrderID,
			Price:     f.Price.String(),
			BaseQty:   f.BaseQty.String(),
			QuoteQty:  f.QuoteQty.String(),
			Success:   f.Success,
			Error:     f.Error,
		}
	}
	return json.Marshal(rows)
}

func decodeFills(raw []byte) ([]domain.LegFill, error) {
	var rows []fillRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	fills := make([]domain.LegFill, len(rows))
	for i, r := range rows {
		f := domain.LegFill{
			Symbol:    r.Symbol,
			Direction: domain.Direction(r.Direction),
			OrderID:   r.OrderID,
			Success:   r.Success,
			Error:     r.Error,
		}
		var err error
		if f.Price, err = decimal.NewFromString(r.Price); err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		if f.BaseQty, err = decimal.NewFromString(r.BaseQty); err != nil {
			return nil, fmt.Errorf("base_qty: %w", err)
		}
		if f.QuoteQty, err = decimal.NewFromString(r.QuoteQty); err != nil {
			return nil, fmt.Errorf("quote_qty: %w", err)
		}
		fills[i] = f
	}
	return fills, nil
}

// Insert stores one execution. Inserting an id twice returns
// domain.ErrAlreadyExists.
func (s *ChainStore) Insert(ctx context.Context, exec domain.ChainExecution) error {
	fills, err := encodeFills(exec.Fills)
	if err != nil {
		return fmt.Errorf("postgres: encode fills %s: %w", exec.ID, err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chain_executions (id, chain_id, fingerprint, fee_percent, expected_profit, expected_percent, fills, status, detected_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		exec.ID, exec.ChainID, exec.Fingerprint,
		exec.FeePercent.String(), exec.ExpectedProfit.String(), exec.ExpectedPercent.String(),
		fills, string(exec.Status), exec.DetectedAt, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert chain_execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: insert chain_execution %s: %w", exec.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// ListRecent returns the most recently started executions, newest first.
func (s *ChainStore) ListRecent(ctx context.Context, limit int) ([]domain.ChainExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, chain_id::text, fingerprint, fee_percent::text, expected_profit::text, expected_percent::text, fills, status, detected_at, started_at, completed_at
		FROM chain_executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chain_executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ChainExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan chain_execution: %w", err)
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list chain_executions: %w", err)
	}
	return out, nil
}

func scanExecution(row pgx.Row) (domain.ChainExecution, error) {
	var (
		exec                   domain.ChainExecution
		fee, profit, pct       string
		fills                  []byte
		status                 string
		detected, started, end time.Time
	)
	if err := row.Scan(&exec.ID, &exec.ChainID, &exec.Fingerprint, &fee, &profit, &pct,
		&fills, &status, &detected, &started, &end); err != nil {
		return domain.ChainExecution{}, err
	}

	var err error
	if exec.FeePercent, err = decimal.NewFromString(fee); err != nil {
		return domain.ChainExecution{}, err
	}
	if exec.ExpectedProfit, err = decimal.NewFromString(profit); err != nil {
		return domain.ChainExecution{}, err
	}
	if exec.ExpectedPercent, err = decimal.NewFromString(pct); err != nil {
		return domain.ChainExecution{}, err
	}
	if exec.Fills, err = decodeFills(fills); err != nil {
		return domain.ChainExecution{}, err
	}
	exec.Status = domain.ExecutionStatus(status)
	exec.DetectedAt = detected.UTC()
	exec.StartedAt = started.UTC()
	exec.CompletedAt = end.UTC()
	return exec, nil
}

// Compile-time interface check.
var _ domain.ChainStore = (*ChainStore)(nil)
