package domain

const (
	TaxIDStatusVerified = "verified"
	TaxIDStatusInvalid  = "invalid"
)

// Payout item statuses shared by dividends and equity buybacks.
const (
	PayoutItemIssued     = "issued"
	PayoutItemRetained   = "retained"
	PayoutItemProcessing = "processing"
	PayoutItemSucceeded  = "succeeded"
	PayoutItemFailed     = "failed"
)

const (
	RetainedReasonOFACSanctionedCountry        = "ofac_sanctioned_country"
	RetainedReasonBelowMinimumPaymentThreshold = "below_minimum_payment_threshold"
)

const (
	PayoutTypeDividend      = "dividend"
	PayoutTypeEquityBuyback = "equity_buyback"
)

const (
	PaymentInitial    = "initial"
	PaymentProcessing = "processing"
	PaymentSucceeded  = "succeeded"
	PaymentFailed     = "failed"
)

const (
	InvoiceReceived       = "received"
	InvoiceApproved       = "approved"
	InvoicePaymentPending = "payment_pending"
	InvoiceProcessing     = "processing"
	InvoicePaid           = "paid"
	InvoiceRejected       = "rejected"
)

const (
	ConsolidatedInvoiceCreated    = "created"
	ConsolidatedInvoiceProcessing = "processing"
	ConsolidatedInvoicePaid       = "paid"
	ConsolidatedInvoiceFailed     = "failed"
)

const (
	ScenarioDraft = "draft"
	ScenarioFinal = "final"
)

const (
	SecurityTypeEquity      = "equity"
	SecurityTypeConvertible = "convertible"
)

const (
	ConversionPathConverted         = "converted"
	ConversionPathPrincipalReturned = "principal_returned"
)
