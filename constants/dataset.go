package constants

// Dataset identifies the record schema a pipeline runs under.
type Dataset string

const (
	DatasetReturns   Dataset = "returns"
	DatasetPurchases Dataset = "purchases"
)

// RejectReason is the canonical reason a raw line was dropped by the normalizer.
// Stable values; they label metrics and file reports.
type RejectReason string

const (
	RejectArity       RejectReason = "arity"
	RejectDate        RejectReason = "date"
	RejectMeasure     RejectReason = "measure"      // unparsable measure
	RejectNegative    RejectReason = "negative"     // measure < 0
	RejectNonPositive RejectReason = "non_positive" // measure <= 0 where > 0 is required
	RejectIdentifier  RejectReason = "identifier"   // missing or wrong prefix
)
