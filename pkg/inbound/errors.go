package inbound

import "errors"

// Errors returned by Submit and SetOperatingMode. Every one of them leaves nonces, balances and the outbox
// untouched.
var (
	ErrInvalidLog     = errors.New("invalid log")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrInvalidGateway = errors.New("invalid gateway")
	ErrInvalidProof   = errors.New("invalid proof")
	ErrInvalidNonce   = errors.New("invalid nonce")
	ErrHalted         = errors.New("inbound queue is halted")
	ErrBadOrigin      = errors.New("bad origin")
)

// errorReason returns a metrics label for err.
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLog):
		return "invalid_log"
	case errors.Is(err, ErrInvalidChannel):
		return "invalid_channel"
	case errors.Is(err, ErrInvalidGateway):
		return "invalid_gateway"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, ErrInvalidNonce):
		return "invalid_nonce"
	case errors.Is(err, ErrHalted):
		return "halted"
	case errors.Is(err, ErrBadOrigin):
		return "bad_origin"
	default:
		return "internal"
	}
}
