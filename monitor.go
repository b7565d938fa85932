package storage

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sispop-dev/storage/pkg/addressbook"
	"github.com/sispop-dev/storage/pkg/identity"
	"golang.org/x/sync/errgroup"
)

// TestPeer probes peer once and records the outcome. It reports whether the
// peer answered. An unreachable peer is not an error; err is set only when
// the test could not be run or a due report failed.
func (n *Node) TestPeer(ctx context.Context, peer identity.PublicKey) (reachable bool, err error) {
	if !n.isStarted() {
		return false, ErrNodeNotStarted
	}

	entry, err := n.addressBook.GetPeer(peer)
	if err != nil {
		if errors.Is(err, addressbook.ErrPeerNotFound) && n.ledger.Expire(peer) {
			n.config.Metrics.UnreachablePeers(n.ledger.Len())
		}
		return false, wrapError(peer, err)
	}
	if entry.Blacklisted {
		return false, wrapError(peer, addressbook.ErrPeerBlacklisted)
	}

	ctx, span := n.tracer.StartTestPeer(ctx, peer)
	defer func() { n.tracer.EndSpan(span, err) }()

	if err := n.probes.Acquire(ctx, 1); err != nil {
		return false, wrapError(peer, err)
	}
	probeErr := n.probe(ctx, entry)
	n.probes.Release(1)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, wrapError(peer, ctxErr)
	}
	return probeErr == nil, n.RecordProbeResult(ctx, peer, probeErr)
}

func (n *Node) probe(ctx context.Context, entry *addressbook.PeerEntry) error {
	ctx, span := n.tracer.StartProbe(ctx, entry.PublicKey)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, n.config.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := n.config.Prober.Probe(ctx, entry)
	n.config.Metrics.ProbeDuration(time.Since(start).Seconds())
	n.tracer.RecordProbeResult(span, err)
	return err
}

// RecordProbeResult feeds the outcome of a probe made elsewhere into the
// ledger. A nil probeErr clears the peer; a failure records it and, once the
// peer has failed for longer than the grace period, reports it.
func (n *Node) RecordProbeResult(ctx context.Context, peer identity.PublicKey, probeErr error) error {
	if !n.isStarted() {
		return ErrNodeNotStarted
	}
	now := n.config.Clock.Now()

	if probeErr == nil {
		n.config.Metrics.ProbeResult("reachable")
		if err := n.addressBook.UpdateLastSeen(peer, time.Now()); err != nil &&
			!errors.Is(err, addressbook.ErrPeerNotFound) {
			n.config.Logger.Debug("could not update last seen", "peer", peer.Short(), "error", err)
		}
		if n.ledger.Expire(peer) {
			n.config.Logger.Info("node is reachable again", "peer", peer.String())
			n.config.Metrics.UnreachablePeers(n.ledger.Len())
			n.emit(ReachabilityEvent{
				Peer:      peer,
				Kind:      EventRecovered,
				State:     n.ledger.State(peer),
				Timestamp: now,
			})
		}
		return nil
	}

	n.config.Metrics.ProbeResult("unreachable")
	rec, due := n.ledger.RecordFailure(peer)
	n.config.Metrics.UnreachablePeers(n.ledger.Len())

	n.emit(ReachabilityEvent{
		Peer:      peer,
		Kind:      EventUnreachable,
		State:     rec.State(),
		Elapsed:   rec.Elapsed(),
		Error:     probeErr,
		Timestamp: now,
	})

	if !due {
		return nil
	}
	return n.report(ctx, peer, rec.Elapsed())
}

// report sends at most one report per peer at a time. Callers that find a
// report in flight share its outcome; a peer already reported or expired
// meanwhile is skipped.
func (n *Node) report(ctx context.Context, peer identity.PublicKey, elapsed time.Duration) error {
	if n.config.Reporter == nil {
		n.config.Logger.Warn("no reporter configured, cannot report node", "peer", peer.String())
		return nil
	}

	_, err, _ := n.reports.Do(peer.String(), func() (any, error) {
		if rec, ok := n.ledger.Lookup(peer); !ok || rec.Reported {
			return nil, nil
		}
		return nil, n.sendReport(ctx, peer, elapsed)
	})
	return err
}

func (n *Node) sendReport(ctx context.Context, peer identity.PublicKey, elapsed time.Duration) error {
	ctx, span := n.tracer.StartReport(ctx, peer, elapsed.Seconds())
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, n.config.ReportTimeout)
	defer cancel()

	err := n.config.Reporter.ReportUnreachable(ctx, peer)
	n.tracer.RecordReportResult(span, err)
	if err != nil {
		n.config.Metrics.ReportResult("failure")
		n.config.Logger.Warn("could not report node as unreachable", "peer", peer.String(), "error", err)
		n.emit(ReachabilityEvent{
			Peer:      peer,
			Kind:      EventReportFailed,
			State:     n.ledger.State(peer),
			Elapsed:   elapsed,
			Error:     err,
			Timestamp: n.config.Clock.Now(),
		})
		sErr := NewPeerError(ErrCodeReportFailed, "report failed", peer, err)
		sErr.Retriable = true
		return sErr
	}

	n.ledger.SetReported(peer)
	n.config.Metrics.ReportResult("success")
	n.config.Logger.Info("reported node as unreachable",
		"peer", peer.String(), "elapsed_seconds", int64(elapsed/time.Second))
	n.emit(ReachabilityEvent{
		Peer:      peer,
		Kind:      EventReported,
		State:     n.ledger.State(peer),
		Elapsed:   elapsed,
		Timestamp: n.config.Clock.Now(),
	})
	return nil
}

// monitor re-tests the longest-untested failing peer and one random active
// peer every RetestInterval.
func (n *Node) monitor(ctx context.Context) {
	ticker := time.NewTicker(n.config.RetestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.monitorTick(ctx)
		}
	}
}

func (n *Node) monitorTick(ctx context.Context) {
	var targets []identity.PublicKey
	if peer, ok := n.ledger.NextToTest(); ok {
		targets = append(targets, peer)
	}
	if peer, ok := n.randomActivePeer(); ok && (len(targets) == 0 || targets[0] != peer) {
		targets = append(targets, peer)
	}
	n.testAll(ctx, targets)
}

// TestPeers tests every given peer concurrently, at most
// MaxConcurrentProbes at a time, and returns the peers that answered.
func (n *Node) TestPeers(ctx context.Context, peers []identity.PublicKey) ([]identity.PublicKey, error) {
	if !n.isStarted() {
		return nil, ErrNodeNotStarted
	}
	results := n.testAll(ctx, peers)

	var reachable []identity.PublicKey
	for i, ok := range results {
		if ok {
			reachable = append(reachable, peers[i])
		}
	}
	return reachable, ctx.Err()
}

func (n *Node) testAll(ctx context.Context, peers []identity.PublicKey) []bool {
	results := make([]bool, len(peers))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n.config.MaxConcurrentProbes)
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			ok, err := n.TestPeer(ctx, peer)
			if err != nil {
				n.config.Logger.Debug("peer test did not complete", "peer", peer.Short(), "error", err)
			}
			results[i] = ok
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (n *Node) randomActivePeer() (identity.PublicKey, bool) {
	peers := n.addressBook.ListActivePeers()
	self := n.PublicKey()
	candidates := peers[:0]
	for _, p := range peers {
		if p.PublicKey != self {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return identity.PublicKey{}, false
	}
	return candidates[rand.Intn(len(candidates))].PublicKey, true
}
