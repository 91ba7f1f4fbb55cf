// Package crawler defines the domain types, storage contracts, and error
// taxonomy shared by the crawl pipeline, the session coordinator, and the
// search engine. It must not import concrete backends.
package crawler
