package status

import (
	"context"
	"time"
)

// Change is emitted on the watch channel whenever a reconciliation produces
// a new snapshot version, feeding /v1/events (§4.F, §4.H).
type Change struct {
	Version     int       `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// DaemonInfoFunc supplies the current supervisor-observed daemon state for
// each reconciliation tick.
type DaemonInfoFunc func() DaemonInfo

// Watch runs Reconcile on a ticker and publishes the latest snapshot plus a
// Change notification each time the version advances. It never blocks the
// caller: snapshots and changes are delivered into buffered channels, and a
// slow consumer simply misses intermediate ticks rather than stalling
// reconciliation.
func (r *Reconciler) Watch(ctx context.Context, interval time.Duration, daemonInfo DaemonInfoFunc, unregisteredOptIn bool) (snapshots <-chan *Snapshot, changes <-chan Change) {
	snapCh := make(chan *Snapshot, 1)
	changeCh := make(chan Change, 1)

	go func() {
		defer close(snapCh)
		defer close(changeCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lastVersion := -1
		emit := func() {
			snap := r.Reconcile(ctx, daemonInfo(), unregisteredOptIn)
			publish(snapCh, snap)
			if snap.Version != lastVersion {
				lastVersion = snap.Version
				publish(changeCh, Change{Version: snap.Version, GeneratedAt: snap.GeneratedAt})
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emit()
			}
		}
	}()

	return snapCh, changeCh
}

// publish drops the oldest buffered value before sending, so Watch's
// channels never block the reconciliation loop.
func publish[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Latest runs Reconcile once, outside of Watch's ticker loop. Useful for
// the synchronous /v1/status request path where a caller wants a fresh
// snapshot rather than the last ticked one.
func (r *Reconciler) Latest(ctx context.Context, daemonInfo DaemonInfo, unregisteredOptIn bool) *Snapshot {
	return r.Reconcile(ctx, daemonInfo, unregisteredOptIn)
}
