// Package downloader drives a download run: it partitions the configured
// span, expands each range into samples per product, and fetches every
// sample the ledger does not already mark done.
//
// Each job goes through the same steps:
//
//	skip if done (or failed permanently, unless retrying permanent failures)
//	mark pending
//	wait for the rate limiter and fetch, retrying transient failures
//	store the artifact, mirror it and write its metadata sidecar
//	mark done, or mark failed with the error's kind
//
// A failed job never stops the run. A failed ledger write does, as does
// cancellation of the context, which is checked between jobs.
package downloader
