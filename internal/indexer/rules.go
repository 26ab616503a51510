package indexer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// acceptedStatusCodes are the crawl status codes that carry indexable content.
// 204 and the rest of the 2xx range are rejected deliberately.
var acceptedStatusCodes = [...]uint16{200, 201, 203}

// AcceptedStatusCodes returns a copy of the accepted status code set.
func AcceptedStatusCodes() []uint16 {
	out := make([]uint16, len(acceptedStatusCodes))
	copy(out, acceptedStatusCodes[:])
	return out
}

// IsAcceptedStatus reports whether code belongs to the accepted set.
func IsAcceptedStatus(code uint16) bool {
	for _, c := range acceptedStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// CheckRules applies the domain acceptance rules to a structurally valid message.
// The url is only checked for presence.
func CheckRules(msg Message) error {
	if msg.URL == "" || msg.Text == "" {
		return fmt.Errorf("%w: URL or text empty", ErrInvalidMessage)
	}
	if !IsAcceptedStatus(msg.Metadata.StatusCode) {
		return fmt.Errorf("%w: invalid status code %d", ErrInvalidMessage, msg.Metadata.StatusCode)
	}
	return nil
}

// NormalizeText lower-cases text. It is the only transformation applied before
// storage and is idempotent.
func NormalizeText(text string) string {
	return strings.ToLower(text)
}

// Processor accepts or rejects messages and hands accepted ones to a Sink.
type Processor struct {
	sink   Sink
	logger *zap.Logger
}

// NewProcessor constructs a Processor writing to sink.
func NewProcessor(sink Sink, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sink: sink, logger: logger}
}

// Process validates msg, normalizes its text and stores the result. Rule
// violations wrap ErrInvalidMessage; sink failures wrap ErrStorage.
func (p *Processor) Process(ctx context.Context, msg Message) error {
	if err := CheckRules(msg); err != nil {
		p.logger.Debug("rule check failed",
			zap.String("url", msg.URL),
			zap.Uint16("status_code", msg.Metadata.StatusCode),
			zap.Error(err),
		)
		return err
	}
	if p.sink == nil {
		return fmt.Errorf("%w: no sink configured", ErrStorage)
	}

	normalized := msg.WithText(NormalizeText(msg.Text))
	p.logger.Debug("text normalized",
		zap.String("url", normalized.URL),
		zap.String("preview", preview(normalized.Text, 30)),
	)

	if err := p.sink.Store(ctx, normalized); err != nil {
		p.logger.Error("store message failed", zap.String("url", normalized.URL), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	p.logger.Debug("message stored", zap.String("url", normalized.URL))
	return nil
}

func preview(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}
