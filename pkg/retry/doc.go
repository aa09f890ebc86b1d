// Package retry re-runs archive requests that fail for transient reasons.
//
// Errors are classified with errors.KindOf: network failures, 5xx
// responses and rate limiting are retried with exponential backoff and
// jitter; missing data and other 4xx responses return immediately. Rate
// limit errors use a separate, slower backoff unless the archive sent a
// Retry-After header, in which case that wait (capped by MaxRetryAfter) is
// used instead.
//
//	cfg := retry.FromSettings(appCfg.Retry, log)
//	path, err := retry.DoWithResult(ctx, cfg, func() (string, error) {
//		return fetcher.Fetch(ctx, req)
//	})
//
// When every attempt fails the returned *ExhaustedError still unwraps to
// the last error, so callers can classify it.
package retry
