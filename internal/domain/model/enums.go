package model

import (
	"fmt"
	"strings"
)

// EnergySource is the generation technology attested by a credit.
type EnergySource string

const (
	EnergySourceSolar EnergySource = "Solar"
	EnergySourceWind  EnergySource = "Wind"
	EnergySourceHydro EnergySource = "Hydro"
)

// ParseEnergySource accepts the canonical names case-insensitively.
func ParseEnergySource(s string) (EnergySource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solar":
		return EnergySourceSolar, nil
	case "wind":
		return EnergySourceWind, nil
	case "hydro":
		return EnergySourceHydro, nil
	default:
		return "", fmt.Errorf("unknown energy source %q", s)
	}
}

// CreditStatus is the viewer-relative status of a credit.
type CreditStatus string

const (
	CreditStatusAvailable CreditStatus = "Available"
	CreditStatusOwned     CreditStatus = "Owned"
	CreditStatusRetired   CreditStatus = "Retired"
)

// ParseCreditStatus accepts the canonical names case-insensitively.
func ParseCreditStatus(s string) (CreditStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "available":
		return CreditStatusAvailable, nil
	case "owned":
		return CreditStatusOwned, nil
	case "retired":
		return CreditStatusRetired, nil
	default:
		return "", fmt.Errorf("unknown credit status %q", s)
	}
}

// LedgerEventType classifies entries in the audit trail.
type LedgerEventType string

const (
	LedgerEventMint     LedgerEventType = "Mint"
	LedgerEventTransfer LedgerEventType = "Transfer"
	LedgerEventRetire   LedgerEventType = "Retire"
)
