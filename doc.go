// Package cfrealip restores the real client IP of requests that reach the
// server through Cloudflare.
//
// A Cloudflare client IP header (CF-Connecting-IP, then True-Client-IP) is
// only believed when the direct peer falls inside the Cloudflare range set.
// Anyone can send those headers; only the edge can connect from its ranges.
//
// # Features
//
//   - Family-isolated CIDR membership over immutable IPv4/IPv6 range sets
//   - Atomic range set construction: one bad CIDR line fails the whole load
//   - Lock-free publication of refreshed range sets via RangeStore
//   - Strict (trusted-only) and permissive (best-guess) IP queries
//   - Bundled Cloudflare ranges so a fresh process works before its first refresh
//   - Optional context-aware logging and pluggable metrics
//
// # Basic Usage
//
// Pure decision over an explicit range set:
//
//	ranges, err := cfrealip.FromLines(
//	    []string{"103.21.244.0/22"},
//	    []string{"2400:cb00::/32"},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result := cfrealip.Resolve(req.RemoteAddr, req.Header, ranges)
//	if result.Valid() {
//	    fmt.Println("client:", result.IP)
//	}
//
// # Keeping Ranges Current
//
// The rangesource package fetches and persists range sets and publishes them
// through a RangeStore that a Resolver reads on every request:
//
//	source, err := rangesource.NewSource(
//	    rangesource.WithSnapshotStore(rangesource.NewFileStore("ranges.json")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go source.Run(ctx)
//
//	resolver, _ := cfrealip.New(
//	    cfrealip.WithRanges(source),
//	    cfrealip.WithLogger(slog.Default()),
//	)
//
// # Framework Adapters
//
// The cfhttp and cfgrpc packages call a Resolver per request and attach the
// Resolution to the request context, readable with FromContext or
// RealIPFromContext.
//
// # Failure Behavior
//
// Resolution never returns an error. Unparseable peers, missing headers and
// empty range sets all resolve to "not trusted", which is the safe default.
//
// # Thread Safety
//
// Resolve, RangeSet and Resolver are safe for concurrent use.
package cfrealip
