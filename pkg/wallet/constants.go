package wallet

const (
	operationCredit  = "credit"
	operationFreeze  = "freeze"
	operationCommit  = "commit"
	operationRelease = "release"
	operationSweep   = "sweep"
	operationSplit   = "split_payment"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultFreezeTTLSeconds bounds how long an unresolved freeze may hold
	// funds before the sweep releases it.
	DefaultFreezeTTLSeconds int64 = 15 * 60

	compensationAttempts = 3
)
