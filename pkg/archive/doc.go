// Package archive describes the solar missions heliodata knows about and
// fetches individual samples from their archives.
//
// Each mission has a product list and a URL template. Templates use
// {product}, {identity} and {time:<layout>} placeholders, where layout is a
// Go time layout applied to the sample time in UTC:
//
//	https://jsoc1.stanford.edu/data/aia/synoptic/{time:2006/01/02}/H{time:1500}/AIA{time:20060102_1504}_{product}.fits
//
// Client implements Fetcher over HTTP. Status codes are mapped to typed
// errors so the caller can tell a gap in the archive (not_available) from
// a transient failure worth retrying.
//
// Basic usage:
//
//	mission, _ := archive.Lookup("sdo-aia", cfg.Missions)
//	client, err := archive.NewClient(mission, cfg.Archive, log)
//	defer client.Close()
//	path, err := client.Fetch(ctx, archive.Request{Product: "0171", Time: t})
package archive
