package rangesource

import (
	"context"

	"github.com/abczzz13/cfrealip"
)

// SnapshotStore persists range sets between process restarts.
//
// Load returns an error matching ErrSnapshotNotFound when nothing has been
// saved yet.
type SnapshotStore interface {
	Load(ctx context.Context) (*cfrealip.RangeSet, error)
	Save(ctx context.Context, set *cfrealip.RangeSet) error
}

// WatchFunc receives each snapshot a Watcher observes, or the error that
// prevented reading it.
type WatchFunc func(set *cfrealip.RangeSet, err error)

// Watcher is implemented by stores that can report snapshots written by
// other processes.
type Watcher interface {
	Watch(ctx context.Context, fn WatchFunc) error
}
