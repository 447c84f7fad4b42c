package orders

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/verdantclimate/verdant-backend/pkg/db/models"
)

// AuditLog appends one JSON line per confirmed order to a rolling file,
// independent of the service log stream. A nil AuditLog discards writes.
type AuditLog struct {
	file *os.File
	log  zerolog.Logger
}

// NewAuditLog opens (or creates) the append-only order log. An empty path
// disables auditing.
func NewAuditLog(path string) (*AuditLog, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &AuditLog{
		file: file,
		log:  zerolog.New(file).With().Timestamp().Logger(),
	}, nil
}

// Append records one confirmed order.
func (a *AuditLog) Append(order *models.Order) {
	if a == nil || order == nil {
		return
	}
	lines := make([]map[string]any, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, map[string]any{
			"kind":            string(line.Kind),
			"name":            line.Name,
			"unitAmountCents": line.UnitAmountCents,
			"quantity":        line.Quantity,
		})
	}
	a.log.Log().
		Str("sessionId", order.SessionID).
		Str("orderReference", order.OrderReference).
		Str("paymentStatus", order.PaymentStatus).
		Str("currency", order.Currency).
		Int64("amountTotalCents", order.AmountTotalCents).
		Str("customerEmail", order.CustomerEmail).
		Interface("lines", lines).
		Msg("order confirmed")
}

// Close releases the underlying file handle.
func (a *AuditLog) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	return a.file.Close()
}
