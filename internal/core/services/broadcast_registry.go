package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RegistryConfig struct {
	NegotiationTimeout time.Duration
	OwnerGracePeriod   time.Duration
	FinalizeTimeout    time.Duration
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		NegotiationTimeout: 30 * time.Second,
		OwnerGracePeriod:   15 * time.Second,
		FinalizeTimeout:    10 * time.Second,
	}
}

// broadcastEntry is the single-writer unit of the registry: every mutation of
// one broadcast happens under its mu, so roster and links never diverge.
type broadcastEntry struct {
	mu sync.Mutex

	b          *domain.Broadcast
	links      map[domain.Identity]*domain.PeerLink
	timers     map[domain.Identity]*time.Timer
	joinedAt   map[domain.Identity]time.Time
	viewerTime time.Duration
	lastSeen   time.Time
	linkSeq    uint64

	orphaned   bool
	graceTimer *time.Timer
	release    func(context.Context) error

	summary atomic.Pointer[domain.Summary]
}

func (e *broadcastEntry) publishSummary() {
	e.summary.Store(&domain.Summary{
		ID:          e.b.ID,
		Owner:       e.b.Owner,
		Title:       e.b.Title,
		Category:    e.b.Category,
		Privacy:     e.b.Privacy,
		ViewerCount: len(e.links),
		StartedAt:   e.b.StartedAt,
	})
}

type BroadcastRegistry struct {
	gate     PermissionGate
	meter    CostMeter
	ledger   ports.CostLedger
	lease    ports.OwnerLease
	notifier ports.Notifier
	metrics  ports.Metrics
	cfg      RegistryConfig
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu         sync.RWMutex
	broadcasts map[domain.BroadcastID]*broadcastEntry
	owners     map[domain.Identity]domain.BroadcastID
	viewers    map[domain.Identity]map[domain.BroadcastID]struct{}
	// gone holds owners that dropped while their start was still reserving.
	gone map[domain.Identity]struct{}

	onLinkOpened func(link *domain.PeerLink)
}

var _ ports.BroadcastRegistry = (*BroadcastRegistry)(nil)

func NewBroadcastRegistry(
	ledger ports.CostLedger,
	lease ports.OwnerLease,
	notifier ports.Notifier,
	meter CostMeter,
	cfg RegistryConfig,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *BroadcastRegistry {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BroadcastRegistry{
		gate:       NewPermissionGate(),
		meter:      meter,
		ledger:     ledger,
		lease:      lease,
		notifier:   notifier,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		broadcasts: make(map[domain.BroadcastID]*broadcastEntry),
		owners:     make(map[domain.Identity]domain.BroadcastID),
		viewers:    make(map[domain.Identity]map[domain.BroadcastID]struct{}),
		gone:       make(map[domain.Identity]struct{}),
	}
}

// OnLinkOpened registers the hook run, under the broadcast's lock, right after
// a viewer is admitted.
func (r *BroadcastRegistry) OnLinkOpened(fn func(link *domain.PeerLink)) {
	r.onLinkOpened = fn
}

func (r *BroadcastRegistry) Start(ctx context.Context, req domain.StartRequest) (domain.BroadcastID, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Owner == "" {
		return "", fmt.Errorf("%w: owner is required", domain.ErrInvalidArgument)
	}
	if req.Title == "" {
		return "", fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}

	allowed := map[domain.Identity]struct{}{}
	switch req.Privacy {
	case domain.PrivacyPublic:
	case domain.PrivacyFriendsOnly:
		allowed = domain.NewAllowList(req.AllowedViewers)
		if len(allowed) == 0 {
			return "", fmt.Errorf("%w: friends_only broadcast needs at least one allowed viewer", domain.ErrInvalidArgument)
		}
	default:
		return "", fmt.Errorf("%w: unknown privacy mode %q", domain.ErrInvalidArgument, req.Privacy)
	}

	id := domain.BroadcastID(uuid.NewString())

	r.mu.Lock()
	if _, busy := r.owners[req.Owner]; busy {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s already owns an active broadcast", domain.ErrConflict, req.Owner)
	}
	// Claimed before the ledger round trip so a concurrent start from the
	// same owner conflicts instead of reserving twice.
	r.owners[req.Owner] = id
	r.mu.Unlock()

	release, err := r.lease.Acquire(ctx, req.Owner)
	if err != nil {
		r.unclaim(req.Owner, id)
		return "", err
	}

	started := time.Now()
	handle, err := r.ledger.Reserve(ctx, req.Owner, id, r.meter.Estimate())
	r.metrics.LedgerCall("reserve", err, time.Since(started))
	if err != nil {
		r.releaseLease(release, req.Owner)
		r.unclaim(req.Owner, id)
		if errors.Is(err, domain.ErrInsufficientResource) {
			return "", err
		}
		return "", fmt.Errorf("%w: reserve failed: %v", domain.ErrInsufficientResource, err)
	}

	now := r.now()
	e := &broadcastEntry{
		b: &domain.Broadcast{
			ID:             id,
			Owner:          req.Owner,
			Title:          req.Title,
			Category:       strings.TrimSpace(req.Category),
			Privacy:        req.Privacy,
			AllowedViewers: allowed,
			Reservation:    handle,
			Status:         domain.StatusActive,
			StartedAt:      now,
		},
		links:    make(map[domain.Identity]*domain.PeerLink),
		timers:   make(map[domain.Identity]*time.Timer),
		joinedAt: make(map[domain.Identity]time.Time),
		lastSeen: now,
		release:  release,
	}
	e.publishSummary()

	// e.mu is held across insertion so a reconnect racing the pending
	// disconnect sees the grace timer already armed.
	e.mu.Lock()
	r.mu.Lock()
	r.broadcasts[id] = e
	_, gone := r.gone[req.Owner]
	delete(r.gone, req.Owner)
	r.mu.Unlock()
	if gone {
		r.orphan(e)
	}
	e.mu.Unlock()

	r.metrics.BroadcastStarted(req.Privacy)
	r.logger.Infow("broadcast started",
		"broadcast_id", id,
		"owner", req.Owner,
		"privacy", req.Privacy,
		"allowed_viewers", len(allowed),
	)

	r.notifier.Broadcast(domain.Event{
		Type: domain.EventBroadcastAvailable,
		Payload: domain.BroadcastAvailable{
			ID:       id,
			Title:    e.b.Title,
			Category: e.b.Category,
		},
	})

	return id, nil
}

func (r *BroadcastRegistry) Stop(ctx context.Context, owner domain.Identity) error {
	e := r.entryByOwner(owner)
	if e == nil {
		return fmt.Errorf("%w: %s has no active broadcast", domain.ErrNotFound, owner)
	}
	return r.end(ctx, e, false)
}

func (r *BroadcastRegistry) Join(ctx context.Context, id domain.BroadcastID, viewer domain.Identity) (domain.Decision, error) {
	e := r.entry(id)
	if e == nil {
		return domain.Decision{}, fmt.Errorf("%w: broadcast %s", domain.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	decision := r.gate.Evaluate(e.b, viewer)
	if !decision.Accepted {
		r.metrics.ViewerDenied(decision.Reason)
		r.logger.Infow("join denied", "broadcast_id", id, "viewer", viewer, "reason", decision.Reason)
		return decision, nil
	}
	if _, already := e.links[viewer]; already {
		return decision, nil
	}

	now := r.now()
	e.linkSeq++
	link := &domain.PeerLink{
		BroadcastID: id,
		Owner:       e.b.Owner,
		Viewer:      viewer,
		State:       domain.LinkInit,
		Seq:         e.linkSeq,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.links[viewer] = link
	e.joinedAt[viewer] = now
	seq := link.Seq
	e.timers[viewer] = time.AfterFunc(r.cfg.NegotiationTimeout, func() {
		r.expireLink(e, viewer, seq)
	})
	r.indexViewer(viewer, id)
	e.publishSummary()

	count := len(e.links)
	r.metrics.ViewerAdmitted(id, count)
	r.logger.Infow("viewer joined", "broadcast_id", id, "viewer", viewer, "viewer_count", count)

	r.notifier.Broadcast(domain.Event{
		Type:    domain.EventViewerJoined,
		Payload: domain.ViewerCount{BroadcastID: id, ViewerCount: count},
	})
	if r.onLinkOpened != nil {
		r.onLinkOpened(link)
	}

	return decision, nil
}

func (r *BroadcastRegistry) Leave(ctx context.Context, id domain.BroadcastID, viewer domain.Identity) error {
	e := r.entry(id)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.removeViewer(e, viewer, domain.CloseLeft)
	return nil
}

// ViewerDisconnected closes every PeerLink the identity holds as a viewer.
func (r *BroadcastRegistry) ViewerDisconnected(ctx context.Context, viewer domain.Identity) {
	r.mu.RLock()
	ids := make([]domain.BroadcastID, 0, len(r.viewers[viewer]))
	for id := range r.viewers[viewer] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		e := r.entry(id)
		if e == nil {
			continue
		}
		e.mu.Lock()
		r.removeViewer(e, viewer, domain.CloseViewerGone)
		e.mu.Unlock()
	}
}

func (r *BroadcastRegistry) WithLink(ctx context.Context, from, to domain.Identity, fn func(link *domain.PeerLink) error) error {
	if from == "" || to == "" || from == to {
		return domain.ErrUnauthorized
	}

	// The owner side of the pair identifies the broadcast: an owner has at
	// most one active broadcast, so (owner, viewer) names at most one link.
	for _, pair := range [][2]domain.Identity{{from, to}, {to, from}} {
		owner, viewer := pair[0], pair[1]
		e := r.entryByOwner(owner)
		if e == nil {
			continue
		}

		e.mu.Lock()
		link, ok := e.links[viewer]
		if !ok || e.b.Status != domain.StatusActive || !link.Connects(from, to) {
			e.mu.Unlock()
			continue
		}
		err := fn(link)
		if link.State == domain.LinkConnected {
			if t := e.timers[viewer]; t != nil {
				t.Stop()
				delete(e.timers, viewer)
			}
		}
		e.mu.Unlock()
		return err
	}

	return domain.ErrUnauthorized
}

func (r *BroadcastRegistry) List(ctx context.Context) []domain.Summary {
	r.mu.RLock()
	out := make([]domain.Summary, 0, len(r.broadcasts))
	for _, e := range r.broadcasts {
		if s := e.summary.Load(); s != nil {
			out = append(out, *s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *BroadcastRegistry) Snapshot(ctx context.Context, id domain.BroadcastID) (*domain.Snapshot, error) {
	e := r.entry(id)
	if e == nil {
		return nil, fmt.Errorf("%w: broadcast %s", domain.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &domain.Snapshot{
		Summary: *e.summary.Load(),
		Status:  e.b.Status,
		Roster:  make([]domain.Identity, 0, len(e.links)),
		Links:   make(map[domain.Identity]domain.LinkState, len(e.links)),
	}
	for viewer, link := range e.links {
		snap.Roster = append(snap.Roster, viewer)
		snap.Links[viewer] = link.State
	}
	sort.Slice(snap.Roster, func(i, j int) bool { return snap.Roster[i] < snap.Roster[j] })
	return snap, nil
}

// Touch records owner liveness; the last value bounds the billed duration of
// a force-ended broadcast.
func (r *BroadcastRegistry) Touch(owner domain.Identity) {
	e := r.entryByOwner(owner)
	if e == nil {
		return
	}
	e.mu.Lock()
	if !e.orphaned {
		e.lastSeen = r.now()
	}
	e.mu.Unlock()
}

// OwnerDisconnected arms the grace timer after which the owner's broadcast
// is force-ended and its reservation finalized.
// Every open link is closed right away since nobody is left to negotiate
// with; the broadcast itself survives until the timer fires. A disconnect
// that lands while Start is still reserving is recorded and applied once
// the broadcast is inserted.
func (r *BroadcastRegistry) OwnerDisconnected(owner domain.Identity) {
	r.mu.Lock()
	id, claimed := r.owners[owner]
	e := r.broadcasts[id]
	if claimed && e == nil {
		r.gone[owner] = struct{}{}
		r.mu.Unlock()
		r.logger.Infow("owner disconnected during start", "owner", owner)
		return
	}
	r.mu.Unlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.orphan(e)
}

// orphan closes the owner's links and arms the grace timer. Caller holds e.mu.
func (r *BroadcastRegistry) orphan(e *broadcastEntry) {
	if e.b.Status != domain.StatusActive || e.orphaned {
		return
	}
	e.orphaned = true
	e.lastSeen = r.now()

	for viewer := range e.links {
		r.removeViewer(e, viewer, domain.CloseOwnerGone)
	}

	e.graceTimer = time.AfterFunc(r.cfg.OwnerGracePeriod, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FinalizeTimeout)
		defer cancel()
		if err := r.end(ctx, e, true); err != nil && !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warnw("force end failed", "broadcast_id", e.b.ID, "error", err)
		}
	})

	r.logger.Infow("broadcast owner disconnected",
		"broadcast_id", e.b.ID,
		"owner", e.b.Owner,
		"grace_period", r.cfg.OwnerGracePeriod,
	)
}

func (r *BroadcastRegistry) OwnerReconnected(owner domain.Identity) {
	r.mu.Lock()
	delete(r.gone, owner)
	r.mu.Unlock()

	e := r.entryByOwner(owner)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.orphaned {
		return
	}
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
	e.orphaned = false
	e.lastSeen = r.now()
	r.logger.Infow("broadcast owner resumed", "broadcast_id", e.b.ID, "owner", owner)
}

// Close force-ends every active broadcast so no reservation outlives the
// process.
func (r *BroadcastRegistry) Close(ctx context.Context) {
	r.mu.RLock()
	entries := make([]*broadcastEntry, 0, len(r.broadcasts))
	for _, e := range r.broadcasts {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if err := r.end(ctx, e, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warnw("failed to end broadcast on shutdown", "broadcast_id", e.b.ID, "error", err)
		}
	}
}

// end moves a broadcast to Ended, closes its links and finalizes the
// reservation. Only the caller that performs the transition finalizes.
func (r *BroadcastRegistry) end(ctx context.Context, e *broadcastEntry, forced bool) error {
	e.mu.Lock()
	if e.b.Status == domain.StatusEnded {
		e.mu.Unlock()
		return fmt.Errorf("%w: broadcast %s already ended", domain.ErrNotFound, e.b.ID)
	}
	if forced && !e.orphaned {
		e.mu.Unlock()
		return nil
	}

	now := r.now()
	endAt := now
	if forced {
		endAt = e.lastSeen
	}

	e.b.Status = domain.StatusEnded
	e.b.EndedAt = now
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}

	viewerTime := e.viewerTime
	for viewer, link := range e.links {
		if joined, ok := e.joinedAt[viewer]; ok && endAt.After(joined) {
			viewerTime += endAt.Sub(joined)
		}
		link.Close(domain.CloseBroadcastEnded, now)
		if t := e.timers[viewer]; t != nil {
			t.Stop()
		}
		r.unindexViewer(viewer, e.b.ID)
		r.metrics.ViewerRemoved(e.b.ID, domain.CloseBroadcastEnded, 0)
	}
	e.links = make(map[domain.Identity]*domain.PeerLink)
	e.timers = make(map[domain.Identity]*time.Timer)
	e.joinedAt = make(map[domain.Identity]time.Time)
	e.publishSummary()

	b := *e.b
	release := e.release
	e.mu.Unlock()

	r.mu.Lock()
	delete(r.broadcasts, b.ID)
	if r.owners[b.Owner] == b.ID {
		delete(r.owners, b.Owner)
	}
	r.mu.Unlock()

	r.notifier.Broadcast(domain.Event{
		Type:    domain.EventBroadcastEnded,
		Payload: domain.BroadcastEnded{ID: b.ID},
	})

	duration := endAt.Sub(b.StartedAt)
	amount := r.meter.Actual(duration, viewerTime)

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FinalizeTimeout)
	defer cancel()
	started := time.Now()
	err := r.ledger.Finalize(finalizeCtx, b.Reservation, amount)
	r.metrics.LedgerCall("finalize", err, time.Since(started))
	if err != nil {
		r.logger.Errorw("reservation finalize failed",
			"broadcast_id", b.ID,
			"reservation", b.Reservation,
			"amount", amount,
			"error", err,
		)
	}

	r.releaseLease(release, b.Owner)
	r.metrics.BroadcastEnded(forced, duration)
	r.logger.Infow("broadcast ended",
		"broadcast_id", b.ID,
		"owner", b.Owner,
		"forced", forced,
		"duration", duration,
		"viewer_time", viewerTime,
		"amount", amount,
	)
	return nil
}

// removeViewer closes the viewer's link and emits viewer_left. Caller holds e.mu.
func (r *BroadcastRegistry) removeViewer(e *broadcastEntry, viewer domain.Identity, reason domain.CloseReason) bool {
	link, ok := e.links[viewer]
	if !ok {
		return false
	}

	now := r.now()
	link.Close(reason, now)
	if t := e.timers[viewer]; t != nil {
		t.Stop()
	}
	if joined, ok := e.joinedAt[viewer]; ok {
		e.viewerTime += now.Sub(joined)
	}
	delete(e.links, viewer)
	delete(e.timers, viewer)
	delete(e.joinedAt, viewer)
	r.unindexViewer(viewer, e.b.ID)
	e.publishSummary()

	count := len(e.links)
	r.metrics.ViewerRemoved(e.b.ID, reason, count)
	r.logger.Infow("viewer left",
		"broadcast_id", e.b.ID,
		"viewer", viewer,
		"reason", reason,
		"viewer_count", count,
	)

	r.notifier.Broadcast(domain.Event{
		Type:    domain.EventViewerLeft,
		Payload: domain.ViewerCount{BroadcastID: e.b.ID, ViewerCount: count},
	})
	return true
}

func (r *BroadcastRegistry) expireLink(e *broadcastEntry, viewer domain.Identity, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	link, ok := e.links[viewer]
	if !ok || link.Seq != seq || link.State == domain.LinkConnected || e.b.Status != domain.StatusActive {
		return
	}

	r.logger.Warnw("negotiation timed out",
		"broadcast_id", e.b.ID,
		"viewer", viewer,
		"state", link.State,
	)
	r.removeViewer(e, viewer, domain.CloseNegotiationTimer)

	if err := r.notifier.Send(viewer, domain.Event{
		Type:    domain.EventTransportFailure,
		Payload: domain.TransportFailure{BroadcastID: e.b.ID, Peer: e.b.Owner},
	}); err != nil {
		r.logger.Debugw("transport failure not delivered", "viewer", viewer, "error", err)
	}
}

func (r *BroadcastRegistry) entry(id domain.BroadcastID) *broadcastEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcasts[id]
}

func (r *BroadcastRegistry) entryByOwner(owner domain.Identity) *broadcastEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[owner]
	if !ok {
		return nil
	}
	return r.broadcasts[id]
}

func (r *BroadcastRegistry) unclaim(owner domain.Identity, id domain.BroadcastID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[owner] == id {
		delete(r.owners, owner)
		delete(r.gone, owner)
	}
}

func (r *BroadcastRegistry) indexViewer(viewer domain.Identity, id domain.BroadcastID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.viewers[viewer]
	if !ok {
		set = make(map[domain.BroadcastID]struct{})
		r.viewers[viewer] = set
	}
	set[id] = struct{}{}
}

func (r *BroadcastRegistry) unindexViewer(viewer domain.Identity, id domain.BroadcastID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.viewers[viewer]
	delete(set, id)
	if len(set) == 0 {
		delete(r.viewers, viewer)
	}
}

func (r *BroadcastRegistry) releaseLease(release func(context.Context) error, owner domain.Identity) {
	if release == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FinalizeTimeout)
	defer cancel()
	if err := release(ctx); err != nil {
		r.logger.Warnw("failed to release owner lease", "owner", owner, "error", err)
	}
}
