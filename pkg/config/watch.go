package config

import (
	"context"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// Watcher holds the current Snapshot and optionally keeps it fresh by
// reloading the descriptor directory on fsnotify events (spec.md §9's
// optional hot reload). Reads of Current never block on a reload in
// progress: readers always see either the previous or the new
// snapshot, never a partially built one, because reload only publishes
// once Load has fully returned.
//
// Grounded on xiguagua-tailscale/cmd/k8s-nameserver's ConfigMap watcher:
// one fsnotify watch on the directory, a channel of "something changed"
// events, a single goroutine that reloads and republishes.
type Watcher struct {
	dir         string
	pidFileName string

	current atomic.Pointer[Snapshot]
	changed chan struct{}
}

// NewWatcher performs an initial Load and returns a Watcher seeded with
// its result. Call Run to start watching for changes; without Run, the
// Watcher behaves like a one-shot Load.
func NewWatcher(dir, pidFileName string) (*Watcher, error) {
	snap, err := Load(dir, pidFileName)
	if err != nil {
		return nil, err
	}
	w := &Watcher{dir: dir, pidFileName: pidFileName, changed: make(chan struct{}, 1)}
	w.current.Store(snap)
	return w, nil
}

// Current returns the most recently published Snapshot. Safe for
// concurrent use by any number of listener goroutines.
func (w *Watcher) Current() *Snapshot {
	return w.current.Load()
}

// Changed signals once per successful reload that a new Snapshot was
// published. It is a 1-buffered "something changed" channel, not an
// event stream: a receiver that drains it once is guaranteed to see
// the latest Snapshot via Current, even if several reloads happened
// between receives. pkg/dnsserver's Fleet uses this to know when to
// re-diff its bound listen addresses against the new Snapshot instead
// of re-binding on every query.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

// Run watches the descriptor directory for changes until ctx is
// cancelled, reloading and atomically publishing a new Snapshot on
// every write/create/remove/rename event. A reload that fails (a
// descriptor became invalid mid-edit) is logged and the previous
// Snapshot is kept in place — a bad edit must not take a previously
// healthy resolver down.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	watchLog := log.WithComponent("config")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			snap, err := Load(w.dir, w.pidFileName)
			if err != nil {
				metrics.ReloadsTotal.WithLabelValues("failure").Inc()
				watchLog.Warn().Err(err).Msg("reload failed, keeping previous configuration")
				continue
			}
			w.current.Store(snap)
			select {
			case w.changed <- struct{}{}:
			default:
			}
			metrics.ReloadsTotal.WithLabelValues("success").Inc()
			networks := make(map[string]struct{})
			for n := range snap.ListenV4 {
				networks[string(n)] = struct{}{}
			}
			for n := range snap.ListenV6 {
				networks[string(n)] = struct{}{}
			}
			metrics.NetworksLoaded.Set(float64(len(networks)))
			watchLog.Info().Msg("configuration reloaded")
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			watchLog.Warn().Err(err).Msg("descriptor directory watch error")
		}
	}
}
