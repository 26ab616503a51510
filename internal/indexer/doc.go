// Package indexer defines the crawl-result message model, its schema, the
// processing rules applied before storage, and the interfaces shared by the
// transports, sinks and the delivery loop.
package indexer
