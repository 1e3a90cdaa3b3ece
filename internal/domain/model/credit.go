package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// TokenID is the ledger-assigned identifier of a credit. It is unique and
// never changes after issuance.
type TokenID uint64

// Address is a ledger account address in 0x-prefixed hex form. Addresses are
// compared case-insensitively because wallets return checksummed (mixed-case)
// strings while contract events emit lowercase ones.
type Address string

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !addressPattern.MatchString(s) {
		return "", fmt.Errorf("invalid address %q: expected 0x followed by 40 hex characters", s)
	}
	return Address(s), nil
}

// Equal reports whether two addresses refer to the same account. An empty
// address never equals anything, including another empty address.
func (a Address) Equal(other Address) bool {
	if a == "" || other == "" {
		return false
	}
	return strings.EqualFold(string(a), string(other))
}

// IsZero returns true for the empty address (no account).
func (a Address) IsZero() bool {
	return a == ""
}

// Short returns the abbreviated 0x1234...abcd form used in tables.
func (a Address) Short() string {
	s := string(a)
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// IssuanceEvent is a CreditIssued log entry read from the ledger. EnergySource
// and ProductionTime are optional in the event payload; when absent they are
// filled from the per-token detail snapshot during reconciliation.
type IssuanceEvent struct {
	TokenID        TokenID
	Producer       Address
	EnergySource   EnergySource
	ProductionTime time.Time
	TxHash         string
	BlockNumber    uint64
}

// CreditDetails is the mutable per-token snapshot returned by the ledger's
// creditDetails view.
type CreditDetails struct {
	Producer       Address
	EnergySource   EnergySource
	ProductionTime time.Time
	Retired        bool
}

// CreditRecord is the reconciled client-side view of one credit.
type CreditRecord struct {
	ID             TokenID
	Producer       Address
	EnergySource   EnergySource
	ProductionTime time.Time
	Owner          Address // Latest observed owner, never the issuance-time producer.
	Retired        bool    // Monotonic: once true it stays true.
	Status         CreditStatus
}

// DeriveStatus computes the viewer-relative status of a record. Retirement
// wins over ownership, and an empty viewer can never own anything.
func DeriveStatus(record CreditRecord, viewer Address) CreditStatus {
	switch {
	case record.Retired:
		return CreditStatusRetired
	case record.Owner.Equal(viewer):
		return CreditStatusOwned
	default:
		return CreditStatusAvailable
	}
}

// WithStatus returns a copy of the record with Status derived for viewer.
func (r CreditRecord) WithStatus(viewer Address) CreditRecord {
	r.Status = DeriveStatus(r, viewer)
	return r
}
