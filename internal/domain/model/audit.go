package model

import "time"

// AuditEntry is one ledger event in the regulator's read-only audit trail.
type AuditEntry struct {
	TxHash    string
	EventType LedgerEventType
	TokenID   TokenID
	From      Address
	To        Address
	Timestamp time.Time
}
