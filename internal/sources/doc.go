// Package sources fetches transcripts and persists them as side files.
//
// A Fetcher resolves an identifier (a video URL or any web page URL) into a
// SourceItem plus its raw text. Router picks the fetcher by host. Store
// writes the text to <title>.txt and the metadata to META_<title>.json
// under the transcripts directory, and reads chunk text back by character
// offsets when answering queries.
//
// Fetch failures are classified as ragerr.ErrSourceNotFound (the source
// does not exist or has no transcript) or ragerr.ErrSourceUnavailable
// (network failures, 5xx, rate limiting).
package sources
