package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// AuditFilter narrows the audit trail. Zero values match everything.
type AuditFilter struct {
	TokenID *model.TokenID
	Type    model.LedgerEventType
	Limit   int
}

// AuditService exposes the read-only ledger event history for regulators.
type AuditService struct {
	ledger driven.LedgerReader
}

// NewAuditService creates a new AuditService.
func NewAuditService(ledger driven.LedgerReader) *AuditService {
	return &AuditService{ledger: ledger}
}

// List returns matching ledger events, newest first. Events with equal
// timestamps are ordered by token ID, then transaction hash.
func (s *AuditService) List(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error) {
	entries, err := s.ledger.ListLedgerEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ledger events: %w", err)
	}

	out := make([]model.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if filter.TokenID != nil && e.TokenID != *filter.TokenID {
			continue
		}
		if filter.Type != "" && e.EventType != filter.Type {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		if out[i].TokenID != out[j].TokenID {
			return out[i].TokenID < out[j].TokenID
		}
		return out[i].TxHash < out[j].TxHash
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
