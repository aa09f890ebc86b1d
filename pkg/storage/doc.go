// Package storage places fetched archive files under the destination root.
//
// Layout is root/product/label/file, where label is YYYY or YYYY/MM (see
// timerange.ResultPath). The downloader passes products as mission/product. Files are written to a temporary name, synced,
// checked against a minimum size and only then renamed into place, so a
// path that exists is always a complete artifact. Gzip payloads (.fits.gz)
// are inflated on the way in when decompression is enabled, and a SHA-256
// digest is computed when checksums are on.
//
// Usage:
//
//	mgr, err := storage.NewManager(root, cfg.Storage, log)
//	art, err := mgr.Store(tmpPath, "sdo-aia/0171", tr, sample)
//	// art.Path == root/sdo-aia/0171/2020/03/2020-03-01T000000.fits
package storage
