// Package normalize validates and coerces raw transaction records into
// canonical TransactionRecords.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelhq/kestrel/internal/domain"
)

// Mode distinguishes batch rows from manual single entries. Batch input
// must carry an explicit timestamp; manual input may omit it.
type Mode int

const (
	ModeBatch Mode = iota
	ModeManual
)

// Accepted timestamp layouts, tried in order. The second is the layout
// the legacy CSV exports use.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalizer produces canonical records. Pure: it never touches the
// historical store.
type Normalizer struct {
	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock creates a Normalizer with a fixed clock.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize validates raw and returns the canonical record, or a
// *domain.ValidationError describing the first failure. Idempotent:
// normalizing a normalized record's raw form yields an identical record.
func (n *Normalizer) Normalize(tenantID string, raw domain.RawRecord, mode Mode) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord

	individualID := strings.TrimSpace(raw.IndividualID)
	if individualID == "" {
		return rec, &domain.ValidationError{Kind: domain.ValidationMissingField, Field: "individual_id"}
	}
	accountID := strings.TrimSpace(raw.AccountID)
	if accountID == "" {
		return rec, &domain.ValidationError{Kind: domain.ValidationMissingField, Field: "account_id"}
	}
	bankName := strings.TrimSpace(raw.BankName)
	if bankName == "" {
		return rec, &domain.ValidationError{Kind: domain.ValidationMissingField, Field: "bank_name"}
	}

	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return rec, err
	}

	ts, err := n.parseTimestamp(raw.Timestamp, mode)
	if err != nil {
		return rec, err
	}

	txID := strings.TrimSpace(raw.TransactionID)
	if txID == "" {
		txID = uuid.New().String()
	}

	return domain.TransactionRecord{
		ID:           txID,
		TenantID:     tenantID,
		IndividualID: individualID,
		AccountID:    accountID,
		BankName:     bankName,
		Amount:       amount,
		Timestamp:    ts,
		CreatedAt:    n.now(),
	}, nil
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &domain.ValidationError{Kind: domain.ValidationMissingField, Field: "amount"}
	}
	amount, err := strconv.ParseFloat(s, 64)
	// ParseFloat accepts "NaN" and "Inf"; neither is a valid amount, and
	// a NaN would poison every window total downstream.
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, &domain.ValidationError{Kind: domain.ValidationInvalidAmount, Field: "amount"}
	}
	return amount, nil
}

func (n *Normalizer) parseTimestamp(s string, mode Mode) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if mode == ModeManual {
			return n.now(), nil
		}
		return time.Time{}, &domain.ValidationError{Kind: domain.ValidationMissingTimestamp, Field: "timestamp"}
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, &domain.ValidationError{Kind: domain.ValidationInvalidTimestamp, Field: "timestamp"}
}
