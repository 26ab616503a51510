package indexer

import "errors"

// Error classes surfaced by the pipeline. Errors returned from this package and
// from the delivery loop wrap exactly one of them.
var (
	ErrTransport      = errors.New("transport error")
	ErrDecode         = errors.New("decode error")
	ErrParse          = errors.New("parse error")
	ErrInvalidMessage = errors.New("invalid message")
	ErrStorage        = errors.New("storage error")
	ErrAcknowledge    = errors.New("acknowledgement error")
)

// Classify maps an error to a short label suitable for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrAcknowledge):
		return "ack"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
