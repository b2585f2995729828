package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// fillDocument is the JSON form of a leg fill.
type fillDocument struct {
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	OrderID   string `json:"order_id,omitempty"`
	Price     string `json:"price"`
	BaseQty   string `json:"base_qty"`
	QuoteQty  string `json:"quote_qty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// executionDocument is the JSON form of an execution, published on the
// signal bus and written to the journal.
type executionDocument struct {
	ID              string         `json:"id"`
	ChainID         string         `json:"chain_id"`
	Fingerprint     string         `json:"fingerprint"`
	Status          string         `json:"status"`
	FeePercent      string         `json:"fee_percent"`
	ExpectedProfit  string         `json:"expected_profit"`
	ExpectedPercent string         `json:"expected_percent"`
	Fills           []fillDocument `json:"fills"`
	DetectedAt      time.Time      `json:"detected_at"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
}

// EncodeExecution renders exec as JSON. Decimals are encoded as strings.
func EncodeExecution(exec domain.ChainExecution) ([]byte, error) {
	doc := executionDocument{
		ID:              exec.ID,
		ChainID:         exec.ChainID,
		Fingerprint:     exec.Fingerprint,
		Status:          string(exec.Status),
		FeePercent:      exec.FeePercent.String(),
		ExpectedProfit:  exec.ExpectedProfit.String(),
		ExpectedPercent: exec.ExpectedPercent.String(),
		Fills:           make([]fillDocument, len(exec.Fills)),
		DetectedAt:      exec.DetectedAt,
		StartedAt:       exec.StartedAt,
		CompletedAt:     exec.CompletedAt,
	}
	for i, f := range exec.Fills {
		doc.Fills[i] = fillDocument{
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
	return json.Marshal(doc)
}

// Journal archives one JSON document per execution in object storage.
type Journal struct {
	writer domain.BlobWriter
}

// NewJournal creates a journal on top of w.
func NewJournal(w domain.BlobWriter) *Journal {
	return &Journal{writer: w}
}

// Path returns executions/YYYY/MM/DD/<id>.json for the execution's start
// date in UTC.
func (j *Journal) Path(exec domain.ChainExecution) string {
	return fmt.Sprintf("executions/%s/%s.json", exec.StartedAt.UTC().Format("2006/01/02"), exec.ID)
}

// Record writes exec to the journal.
func (j *Journal) Record(ctx context.Context, exec domain.ChainExecution) error {
	data, err := EncodeExecution(exec)
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", exec.ID, err)
	}
	if err := j.writer.Put(ctx, j.Path(exec), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}
