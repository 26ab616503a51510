// Package crawler fetches single pages with colly and turns them into the
// crawl-result messages consumed by the indexer.
package crawler
