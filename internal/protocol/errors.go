package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Action layer (recoverable, surfaced to the decision log).
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknownTruck = "E_UNKNOWN_TRUCK"
	ErrUnknownZone  = "E_UNKNOWN_ZONE"
	ErrInvalidState = "E_INVALID_STATE"
	ErrNoParking    = "E_NO_PARKING"
	ErrSuperseded   = "E_SUPERSEDED"

	// Decision-maker layer.
	ErrDecisionTimeout     = "E_DECISION_TIMEOUT"
	ErrDecisionMalformed   = "E_DECISION_MALFORMED"
	ErrDecisionUnavailable = "E_DECISION_UNAVAILABLE"

	// Shared-state store.
	ErrStoreUnavailable = "E_STORE_UNAVAILABLE"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:     {},
	ErrBadRequest:          {},
	ErrUnknownTruck:        {},
	ErrUnknownZone:         {},
	ErrInvalidState:        {},
	ErrNoParking:           {},
	ErrSuperseded:          {},
	ErrDecisionTimeout:     {},
	ErrDecisionMalformed:   {},
	ErrDecisionUnavailable: {},
	ErrStoreUnavailable:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
