package indexer

import "context"

// Metadata describes the crawl that produced a message.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Timestamp is an ISO-8601 string and is kept verbatim.
	Timestamp  string `json:"timestamp"`
	StatusCode uint16 `json:"status_code"`
}

// Message is one crawl result as it travels through the pipeline.
// Values are copied, never shared: WithText returns a new Message.
type Message struct {
	URL      string   `json:"url"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// WithText returns a copy of m carrying text.
func (m Message) WithText(text string) Message {
	m.Text = text
	return m
}

// Delivery is one raw payload pulled from a transport. Exactly one of Ack or
// Nack must be called for a delivery that carries no Err.
type Delivery struct {
	// ID identifies the delivery in logs; transports fill it when they can.
	ID   string
	Body []byte
	// Attributes carries transport headers, used for trace propagation.
	Attributes map[string]string
	// Err reports a failure to retrieve this delivery. Body, Ack and Nack are
	// unset when Err is non-nil.
	Err  error
	Ack  func(ctx context.Context) error
	Nack func(ctx context.Context) error
}
