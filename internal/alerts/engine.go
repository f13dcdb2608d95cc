package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wechange-eg/cosinnus-notifications/internal/pkg/errors"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// keyedMutex serializes work per string key. Entries are removed once the
// last holder releases, so the map stays bounded by concurrency, not by
// key cardinality.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()
	l.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	l.Unlock()
}

// Engine merges candidate alerts into a user's alert stream. All merges
// for one owner run under a per-user lock; together with the database's
// (user_id, item_hash) unique index this keeps concurrent merges from
// creating duplicate rows.
type Engine struct {
	registry *registry.Registry
	store    Store
	locks    *keyedMutex

	multiWindow  time.Duration
	bundleWindow time.Duration

	now func() time.Time
}

func NewEngine(reg *registry.Registry, store Store, multiWindow, bundleWindow time.Duration) *Engine {
	return &Engine{
		registry:     reg,
		store:        store,
		locks:        newKeyedMutex(),
		multiWindow:  multiWindow,
		bundleWindow: bundleWindow,
		now:          time.Now,
	}
}

// Outcome reports what MergeOrCreate did with a candidate.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeMerged  Outcome = "merged"
	OutcomeDropped Outcome = "dropped"
)

// MergeOrCreate merges the candidate into an existing alert when a merge
// key matches, or persists it as a new Single alert. A same-actor repeat
// on the same item within the multi-user window is dropped as a no-op;
// the Outcome tells the caller which of the three happened.
func (e *Engine) MergeOrCreate(ctx context.Context, cand *Alert) (Outcome, error) {
	desc, ok := e.registry.Get(cand.TypeID)
	if !ok {
		return "", fmt.Errorf("merge alert: unknown notification type %q", cand.TypeID)
	}

	e.locks.lock(cand.UserID)
	defer e.locks.unlock(cand.UserID)

	now := e.now()

	out, err := e.mergeMultiUser(ctx, cand, desc, now)
	if err != nil || out != "" {
		return out, err
	}
	out, err = e.mergeBundle(ctx, cand, desc, now)
	if err != nil || out != "" {
		return out, err
	}

	cand.Type = TypeSingle
	cand.Counter = 1
	cand.Seen = false
	cand.LastEventAt = now
	cand.CreatedAt = now
	cand.Label = labelFor(desc, cand)
	if err := e.store.Create(ctx, cand); err != nil {
		// a row outside the merge window still holds the (user, item_hash)
		// key; the candidate is dropped rather than duplicated
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			logger.Debug("alert key already taken outside merge window, dropping candidate",
				zap.String("user_id", cand.UserID),
				zap.String("item_hash", cand.ItemHash),
			)
			return OutcomeDropped, nil
		}
		return "", err
	}
	return OutcomeCreated, nil
}

// mergeMultiUser attempts the same-item merge. An empty Outcome means the
// candidate was not consumed and the next merge phase may run.
func (e *Engine) mergeMultiUser(ctx context.Context, cand *Alert, desc *registry.Descriptor, now time.Time) (Outcome, error) {
	matches, err := e.store.FindByItemHash(ctx, cand.UserID, cand.ItemHash, now.Add(-e.multiWindow))
	if err != nil {
		return "", fmt.Errorf("query item hash matches: %w", err)
	}
	if len(matches) > 1 {
		logger.Warn("more than one alert matches item hash, abandoning merge",
			zap.String("user_id", cand.UserID),
			zap.String("item_hash", cand.ItemHash),
			zap.Int("matches", len(matches)),
		)
		return "", fmt.Errorf("item hash %s for user %s: %w", cand.ItemHash, cand.UserID, apperrors.ErrInconsistentAlerts)
	}
	if len(matches) == 0 {
		return "", nil
	}

	m := matches[0]
	if m.Type == TypeBundle {
		// item hash survives on bundled alerts; they are never a
		// multi-user merge target
		return "", nil
	}

	for _, id := range m.actorIDs() {
		if id == cand.ActionUser.UserID {
			// repeated toggle-like action (like, unlike, like): no-op
			return OutcomeDropped, nil
		}
	}

	if m.Type == TypeSingle {
		m.Type = TypeMultiUser
		m.MultiUserList = []ActorRef{m.ActionUser}
	}
	m.MultiUserList = append(m.MultiUserList, cand.ActionUser)
	m.ActionUser = cand.ActionUser
	m.Counter++
	m.Seen = false
	m.LastEventAt = now
	m.Label = labelFor(desc, m)
	if err := e.store.Update(ctx, m); err != nil {
		return "", fmt.Errorf("persist multi-user merge: %w", err)
	}
	return OutcomeMerged, nil
}

func (e *Engine) mergeBundle(ctx context.Context, cand *Alert, desc *registry.Descriptor, now time.Time) (Outcome, error) {
	matches, err := e.store.FindByBundleHash(ctx, cand.UserID, cand.BundleHash, now.Add(-e.bundleWindow))
	if err != nil {
		return "", fmt.Errorf("query bundle hash matches: %w", err)
	}
	if len(matches) > 1 {
		logger.Warn("more than one alert matches bundle hash, abandoning merge",
			zap.String("user_id", cand.UserID),
			zap.String("bundle_hash", cand.BundleHash),
			zap.Int("matches", len(matches)),
		)
		return "", fmt.Errorf("bundle hash %s for user %s: %w", cand.BundleHash, cand.UserID, apperrors.ErrInconsistentAlerts)
	}
	if len(matches) == 0 {
		return "", nil
	}

	m := matches[0]
	if m.Type == TypeMultiUser {
		// type transitions are one-way and exclusive
		return "", nil
	}

	if m.Type == TypeSingle {
		m.Type = TypeBundle
		m.BundleList = []BundleRef{{ObjectID: m.ObjectID, Title: m.Title, URL: m.URL, Icon: m.Icon}}
	}
	m.BundleList = append(m.BundleList, BundleRef{ObjectID: cand.ObjectID, Title: cand.Title, URL: cand.URL, Icon: cand.Icon})

	// most-recent-first: the alert points at the newest target. The item
	// hash keeps its original value; it is a merge key, not display data.
	m.ContentType = cand.ContentType
	m.ObjectID = cand.ObjectID
	m.Title = cand.Title
	m.URL = cand.URL
	m.Icon = cand.Icon

	m.Counter++
	m.Seen = false
	m.LastEventAt = now
	m.Label = labelFor(desc, m)
	if err := e.store.Update(ctx, m); err != nil {
		return "", fmt.Errorf("persist bundle merge: %w", err)
	}
	return OutcomeMerged, nil
}
