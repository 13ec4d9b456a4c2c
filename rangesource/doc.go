// Package rangesource supplies cfrealip range sets from a local or remote
// authority and keeps a published copy current.
//
// A Source reads a persisted snapshot through a SnapshotStore, refreshes from
// the Cloudflare plaintext lists through a Fetcher, and publishes every new
// set atomically through a cfrealip.RangeStore. A failed load or refresh
// never replaces the set already in effect.
//
//	store := rangesource.NewFileStore("/var/lib/cfrealip/ranges.json")
//	source, err := rangesource.NewSource(
//	    rangesource.WithSnapshotStore(store),
//	    rangesource.WithInterval(12*time.Hour),
//	)
//	if err != nil {
//	    return err
//	}
//	if _, err := source.Load(ctx); err != nil {
//	    slog.Warn("using bundled ranges", "err", err)
//	}
//	go source.Run(ctx)
//
//	resolver, err := cfrealip.New(cfrealip.WithRanges(source))
//
// Snapshots use the same {"v4": [...], "v6": [...]} document as the ranges
// bundled with cfrealip, whether they live on disk (FileStore) or in S3
// (S3Store).
package rangesource
