package web

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	vm "github.com/ericfisherdev/creditpanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// formatPrice renders cents as a decimal amount, e.g. 1250 -> "12.50".
func formatPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// parsePriceCents parses a decimal amount with at most two fraction digits.
func parsePriceCents(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}

	var cents int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid price %q: use at most two decimals", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("invalid price %q", s)
		}
	}
	return units*100 + cents, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("Jan 2, 2006")
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:8] + "..." + h[len(h)-4:]
}

// toCreditRow converts a record plus its action state into a table row.
// connected gates the buy button; retire and pricing need ownership anyway.
func toCreditRow(rec model.CreditRecord, action model.ActionStatus, connected bool) vm.CreditRowViewModel {
	row := vm.CreditRowViewModel{
		ID:             uint64(rec.ID),
		Producer:       string(rec.Producer),
		ProducerShort:  rec.Producer.Short(),
		EnergySource:   string(rec.EnergySource),
		ProductionDate: formatDate(rec.ProductionTime),
		Owner:          string(rec.Owner),
		OwnerShort:     rec.Owner.Short(),
		Status:         string(rec.Status),
		ActionState:    string(action.State),
		ActionKind:     string(action.Kind),
		TxHash:         action.TxHash,
		Pending:        action.State == model.ActionPending,
		CanAck:         action.State == model.ActionSuccess,
	}

	idle := action.State == model.ActionIdle || action.State == ""
	if idle {
		row.ActionError = action.LastError
	}
	row.CanBuy = idle && connected && rec.Status == model.CreditStatusAvailable
	row.CanRetire = idle && rec.Status == model.CreditStatusOwned
	row.CanPrice = idle && rec.Status == model.CreditStatusOwned
	return row
}

func toAuditRow(e model.AuditEntry) vm.AuditRowViewModel {
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.UTC().Format("2006-01-02 15:04:05")
	}
	return vm.AuditRowViewModel{
		Timestamp: ts,
		EventType: string(e.EventType),
		TokenID:   uint64(e.TokenID),
		From:      e.From.Short(),
		To:        e.To.Short(),
		TxHash:    e.TxHash,
		TxShort:   shortHash(e.TxHash),
	}
}

// sourceTotals counts MWh per energy source, one credit being one MWh.
func sourceTotals(records []model.CreditRecord) []vm.SourceTotal {
	counts := make(map[string]int)
	for _, rec := range records {
		src := string(rec.EnergySource)
		if src == "" {
			src = "Unknown"
		}
		counts[src]++
	}

	totals := make([]vm.SourceTotal, 0, len(counts))
	for src, n := range counts {
		totals = append(totals, vm.SourceTotal{Source: src, MWh: n})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Source < totals[j].Source })
	return totals
}

// userMessage turns a service error into text fit for a flash message.
func userMessage(err error) string {
	var rejected *model.ActionRejectedError
	switch {
	case errors.Is(err, model.ErrNoViewer):
		return "Connect a wallet first."
	case errors.Is(err, model.ErrCreditNotFound):
		return "That credit is not in the current view. Try refreshing."
	case errors.Is(err, model.ErrActionInFlight):
		return "An action on this credit is already in progress."
	case errors.As(err, &rejected):
		return "Declined: " + rejected.Reason
	case errors.Is(err, model.ErrActionNotAllowed):
		return "That action is not allowed for this credit."
	case errors.Is(err, model.ErrAnalysisUnavailable):
		return "Analysis is not configured."
	case errors.Is(err, application.ErrInvalidPrice), errors.Is(err, application.ErrInvalidIssueRequest):
		return err.Error()
	default:
		return "Something went wrong: " + err.Error()
	}
}
