package consumer

import "sync/atomic"

// Stats counts delivery outcomes. A single Stats may be shared by every
// consumer of a Group.
type Stats struct {
	accepted        atomic.Uint64
	decodeErrors    atomic.Uint64
	parseErrors     atomic.Uint64
	invalidMessages atomic.Uint64
	storageErrors   atomic.Uint64
	otherErrors     atomic.Uint64
	ackFailures     atomic.Uint64
	nackFailures    atomic.Uint64
	transportErrors atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Accepted        uint64 `json:"accepted"`
	Rejected        uint64 `json:"rejected"`
	DecodeErrors    uint64 `json:"decode_errors"`
	ParseErrors     uint64 `json:"parse_errors"`
	InvalidMessages uint64 `json:"invalid_messages"`
	StorageErrors   uint64 `json:"storage_errors"`
	OtherErrors     uint64 `json:"other_errors"`
	AckFailures     uint64 `json:"ack_failures"`
	NackFailures    uint64 `json:"nack_failures"`
	TransportErrors uint64 `json:"transport_errors"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Accepted:        s.accepted.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		ParseErrors:     s.parseErrors.Load(),
		InvalidMessages: s.invalidMessages.Load(),
		StorageErrors:   s.storageErrors.Load(),
		OtherErrors:     s.otherErrors.Load(),
		AckFailures:     s.ackFailures.Load(),
		NackFailures:    s.nackFailures.Load(),
		TransportErrors: s.transportErrors.Load(),
	}
	snap.Rejected = snap.DecodeErrors + snap.ParseErrors + snap.InvalidMessages + snap.StorageErrors + snap.OtherErrors
	return snap
}

func (s *Stats) recordRejection(reason string) {
	switch reason {
	case "decode":
		s.decodeErrors.Add(1)
	case "parse":
		s.parseErrors.Add(1)
	case "invalid":
		s.invalidMessages.Add(1)
	case "storage":
		s.storageErrors.Add(1)
	default:
		s.otherErrors.Add(1)
	}
}
