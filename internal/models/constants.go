package models

// Entity types the engine synchronizes.
const (
	EntityProduct     = "product"
	EntityCustomer    = "customer"
	EntityInvoice     = "invoice"
	EntityTransaction = "transaction"
)

// Operations accepted by the orchestrator.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Queue item statuses.
const (
	QueuePending    = "pending"
	QueueInProgress = "in_progress"
	QueueAbandoned  = "abandoned"
)

const (
	// DefaultMaxRetries is the retry budget before an item is abandoned.
	DefaultMaxRetries = 3

	// DefaultDrainInterval seconds between drain passes.
	DefaultDrainInterval = 5

	// DefaultDrainBatchSize items fetched per tenant per pass.
	DefaultDrainBatchSize = 20

	// DefaultGatewayTimeout seconds for a single remote call.
	DefaultGatewayTimeout = 15

	// DefaultScopeTTL seconds a cached permission grant stays valid.
	DefaultScopeTTL = 15 * 60

	// DefaultScopeMaxEntries bounds the in-memory scope cache.
	DefaultScopeMaxEntries = 1024
)

// EntityTypes lists every entity type the engine knows about.
var EntityTypes = []string{EntityProduct, EntityCustomer, EntityInvoice, EntityTransaction}

// ValidEntityType reports whether t is a known entity type.
func ValidEntityType(t string) bool {
	for _, known := range EntityTypes {
		if known == t {
			return true
		}
	}
	return false
}

// ValidOperation reports whether op is a known operation kind.
func ValidOperation(op string) bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}
