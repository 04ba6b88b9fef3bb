package audithook

// Action constants for audit events.
const (
	// Branch actions
	ActionBranchCreated = "branch.created"

	// Invoice actions
	ActionInvoiceCreated = "invoice.created"

	// Payment actions
	ActionPaymentCompleted = "payment.completed"
	ActionPaymentFailed    = "payment.failed"
	ActionPaymentConflict  = "payment.conflict"

	// Export actions
	ActionBatchExported = "export.batch_exported"
	ActionExportFailed  = "export.failed"
)

// Resource constants for audit events.
const (
	ResourceBranch  = "branch"
	ResourceInvoice = "invoice"
	ResourcePayment = "payment"
	ResourceBatch   = "export_batch"
)

// Category constants for audit events.
const (
	CategoryAdmin       = "admin"
	CategoryBilling     = "billing"
	CategoryPayment     = "payment"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
