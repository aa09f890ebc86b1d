// Package ratelimit keeps request rates to solar data archives within
// their published limits.
//
// Window caps the number of requests in a rolling minute
// (rate_limit.requests_per_minute). Spacing enforces a minimum gap between
// consecutive requests (rate_limit.min_interval). New combines whichever
// are configured:
//
//	limiter := ratelimit.New(cfg.RateLimit)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
// Wait takes a context so an interrupted download stops promptly.
package ratelimit
