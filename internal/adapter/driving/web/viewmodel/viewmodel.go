// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// PageViewModel holds the data shared by every page: navigation, the
// connected account, flash messages and the state of the last refresh.
type PageViewModel struct {
	Title       string
	Active      string // Navigation key of the current page.
	Viewer      string
	ViewerShort string
	Connected   bool
	CSRFToken   string
	Notice      string
	Error       string

	ViewError    string // Error of the refresh that produced the visible view.
	Partial      bool
	FailureCount int
	Restored     bool
	BuiltAt      string
}

// CreditRowViewModel holds presentation-ready data for one credit row.
type CreditRowViewModel struct {
	ID             uint64
	Producer       string
	ProducerShort  string
	EnergySource   string
	ProductionDate string
	Owner          string
	OwnerShort     string
	Status         string
	Price          string // Formatted asking price; empty when unlisted.

	ActionState string
	ActionKind  string
	ActionError string
	TxHash      string

	CanBuy    bool
	CanRetire bool
	CanPrice  bool
	CanAck    bool
	Pending   bool
}

// MarketplaceViewModel holds the buyer's marketplace table.
type MarketplaceViewModel struct {
	Page    PageViewModel
	Credits []CreditRowViewModel
}

// PortfolioViewModel holds the viewer's owned and retired credits.
type PortfolioViewModel struct {
	Page    PageViewModel
	Owned   []CreditRowViewModel
	Retired []CreditRowViewModel
	// Totals by energy source, e.g. "Solar" -> 12.
	Totals []SourceTotal
}

// SourceTotal is a per-source MWh count.
type SourceTotal struct {
	Source string
	MWh    int
}

// ProducerViewModel holds the issuance form.
type ProducerViewModel struct {
	Page          PageViewModel
	Sources       []string
	MaxMWh        int
	Today         string
	LastTxHashes  []string
	DefaultSource string
}

// AuditRowViewModel holds one audit trail entry.
type AuditRowViewModel struct {
	Timestamp string
	EventType string
	TokenID   uint64
	From      string
	To        string
	TxHash    string
	TxShort   string
}

// AuditViewModel holds the regulator's audit trail with its filters.
type AuditViewModel struct {
	Page        PageViewModel
	Entries     []AuditRowViewModel
	TokenFilter string
	TypeFilter  string
	Types       []string
	LoadError   string
}

// AnalysisViewModel holds the analysis form and, after a run, the rendered
// result sections as sanitized HTML.
type AnalysisViewModel struct {
	Page               PageViewModel
	Available          bool
	Input              string
	HasResult          bool
	DemandHTML         string
	InefficienciesHTML string
	StrategiesHTML     string
	MaxInputLength     int
}
