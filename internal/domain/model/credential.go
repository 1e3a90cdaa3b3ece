package model

import "time"

// Credential services the panel stores API keys for.
const (
	CredentialLedger = "ledger"
	CredentialGemini = "gemini"
)

// Credential holds a stored secret for an external service.
type Credential struct {
	ID        int64
	Service   string
	Value     string
	UpdatedAt time.Time
}

// KnownCredentialService reports whether service is one the panel uses.
func KnownCredentialService(service string) bool {
	return service == CredentialLedger || service == CredentialGemini
}
