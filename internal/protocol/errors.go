package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Network routing/clock.
	ErrNetworkNotFound = "E_NETWORK_NOT_FOUND"
	ErrClockBusy       = "E_CLOCK_BUSY"

	// Submission/resolution layer.
	ErrBadRequest           = "E_BAD_REQUEST"
	ErrNoPermission         = "E_NO_PERMISSION"
	ErrUnknownActor         = "E_UNKNOWN_ACTOR"
	ErrUnknownProperty      = "E_UNKNOWN_PROPERTY"
	ErrInsufficientFunds    = "E_INSUFFICIENT_FUNDS"
	ErrInsufficientHoldings = "E_INSUFFICIENT_HOLDINGS"
	ErrNoSupply             = "E_NO_SUPPLY"
	ErrPropertyUnavailable  = "E_PROPERTY_UNAVAILABLE"
	ErrOwnerThreshold       = "E_OWNER_THRESHOLD"
	ErrNotTenant            = "E_NOT_TENANT"
	ErrNothingOwed          = "E_NOTHING_OWED"
	ErrTreasuryLimit        = "E_TREASURY_LIMIT"
	ErrConflict             = "E_CONFLICT"
	ErrStaleMonth           = "E_STALE_MONTH"
	ErrInternal             = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:      {},
	ErrNetworkNotFound:      {},
	ErrClockBusy:            {},
	ErrBadRequest:           {},
	ErrNoPermission:         {},
	ErrUnknownActor:         {},
	ErrUnknownProperty:      {},
	ErrInsufficientFunds:    {},
	ErrInsufficientHoldings: {},
	ErrNoSupply:             {},
	ErrPropertyUnavailable:  {},
	ErrOwnerThreshold:       {},
	ErrNotTenant:            {},
	ErrNothingOwed:          {},
	ErrTreasuryLimit:        {},
	ErrConflict:             {},
	ErrStaleMonth:           {},
	ErrInternal:             {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
