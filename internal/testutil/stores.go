package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/mail"
	apperrors "github.com/wechange-eg/cosinnus-notifications/internal/pkg/errors"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
)

// MemAlertStore is an in-memory alerts.Store.
type MemAlertStore struct {
	mu     sync.Mutex
	Alerts []*alerts.Alert
}

var _ alerts.Store = (*MemAlertStore)(nil)

func (s *MemAlertStore) Create(ctx context.Context, a *alerts.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	for _, existing := range s.Alerts {
		if existing.UserID == a.UserID && existing.ItemHash == a.ItemHash {
			return fmt.Errorf("alert for (%s, %s): %w", a.UserID, a.ItemHash, apperrors.ErrAlreadyExists)
		}
	}
	cp := *a
	s.Alerts = append(s.Alerts, &cp)
	return nil
}

func (s *MemAlertStore) Update(ctx context.Context, a *alerts.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.Alerts {
		if existing.ID == a.ID && existing.UserID == a.UserID {
			cp := *a
			s.Alerts[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", a.ID, apperrors.ErrNotFound)
}

func (s *MemAlertStore) FindByItemHash(ctx context.Context, userID, itemHash string, since time.Time) ([]*alerts.Alert, error) {
	return s.find(userID, since, func(a *alerts.Alert) bool { return a.ItemHash == itemHash })
}

func (s *MemAlertStore) FindByBundleHash(ctx context.Context, userID, bundleHash string, since time.Time) ([]*alerts.Alert, error) {
	return s.find(userID, since, func(a *alerts.Alert) bool { return a.BundleHash == bundleHash })
}

func (s *MemAlertStore) find(userID string, since time.Time, match func(*alerts.Alert) bool) ([]*alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerts.Alert
	for _, a := range s.Alerts {
		if a.UserID == userID && match(a) && !a.LastEventAt.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemAlertStore) ListForUser(ctx context.Context, userID string, newerThan time.Time, limit, offset int) ([]*alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerts.Alert
	for _, a := range s.Alerts {
		if a.UserID == userID && a.LastEventAt.After(newerThan) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastEventAt.After(out[j].LastEventAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemAlertStore) MarkSeen(ctx context.Context, userID, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.Alerts {
		if a.ID == alertID && a.UserID == userID {
			a.Seen = true
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", alertID, apperrors.ErrNotFound)
}

func (s *MemAlertStore) MarkSeenBefore(ctx context.Context, userID string, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.Alerts {
		if a.UserID == userID && !a.Seen && !a.LastEventAt.After(t) {
			a.Seen = true
			n++
		}
	}
	return n, nil
}

// MemEventStore is an in-memory domain.EventStore.
type MemEventStore struct {
	mu     sync.Mutex
	Events []*domain.NotificationEvent
}

var _ domain.EventStore = (*MemEventStore)(nil)

func (s *MemEventStore) CreateEvent(ctx context.Context, ev *domain.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.Events = append(s.Events, &cp)
	return nil
}

func (s *MemEventStore) EventsInWindow(ctx context.Context, portalID string, start, end time.Time) ([]*domain.NotificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.NotificationEvent
	for _, ev := range s.Events {
		if ev.PortalID != portalID {
			continue
		}
		if ev.CreatedAt.Before(start) || !ev.CreatedAt.Before(end) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemEventStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*domain.NotificationEvent
	var deleted int64
	for _, ev := range s.Events {
		if ev.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.Events = kept
	return deleted, nil
}

type prefKey struct{ user, group, typeID string }

type multiKey struct{ user, portal, set string }

// MemPrefStore is an in-memory preferences.Store.
type MemPrefStore struct {
	mu     sync.Mutex
	rows   map[prefKey]domain.Frequency
	global map[string]domain.GlobalSetting
	multi  map[multiKey]domain.Frequency
}

var _ preferences.Store = (*MemPrefStore)(nil)

func NewMemPrefStore() *MemPrefStore {
	return &MemPrefStore{
		rows:   make(map[prefKey]domain.Frequency),
		global: make(map[string]domain.GlobalSetting),
		multi:  make(map[multiKey]domain.Frequency),
	}
}

func (s *MemPrefStore) GroupPreference(ctx context.Context, userID, groupID, typeID string) (domain.Frequency, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[prefKey{userID, groupID, typeID}]
	return f, ok, nil
}

func (s *MemPrefStore) SetGroupPreference(ctx context.Context, userID, groupID, typeID string, setting domain.Frequency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[prefKey{userID, groupID, typeID}] = setting
	return nil
}

func (s *MemPrefStore) DeleteGroupPreferences(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.rows {
		if k.user == userID && k.group == groupID {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *MemPrefStore) DeleteGroupPreference(ctx context.Context, userID, groupID, typeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, prefKey{userID, groupID, typeID})
	return nil
}

func (s *MemPrefStore) GroupRows(ctx context.Context, userID string, groupIDs []string) ([]preferences.GroupPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(groupIDs))
	for _, g := range groupIDs {
		wanted[g] = true
	}
	var out []preferences.GroupPreference
	for k, f := range s.rows {
		if k.user == userID && wanted[k.group] {
			out = append(out, preferences.GroupPreference{UserID: k.user, GroupID: k.group, TypeID: k.typeID, Setting: f})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].TypeID < out[j].TypeID
	})
	return out, nil
}

func (s *MemPrefStore) GlobalSetting(ctx context.Context, userID string) (domain.GlobalSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global[userID], nil
}

func (s *MemPrefStore) SetGlobalSetting(ctx context.Context, userID string, setting domain.GlobalSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[userID] = setting
	return nil
}

func (s *MemPrefStore) MultiPreference(ctx context.Context, userID, portalID, setID string) (domain.Frequency, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.multi[multiKey{userID, portalID, setID}]
	return f, ok, nil
}

func (s *MemPrefStore) SetMultiPreference(ctx context.Context, userID, portalID, setID string, setting domain.Frequency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multi[multiKey{userID, portalID, setID}] = setting
	return nil
}

// CapturingSender records outbound mail instead of sending it.
type CapturingSender struct {
	mu   sync.Mutex
	Sent []mail.Message

	// Fail lists recipient addresses whose sends should error.
	Fail map[string]error
}

var _ mail.Sender = (*CapturingSender)(nil)

func NewCapturingSender() *CapturingSender {
	return &CapturingSender{Fail: make(map[string]error)}
}

func (s *CapturingSender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.Fail[msg.To]; ok {
		return err
	}
	s.Sent = append(s.Sent, msg)
	return nil
}

// SentTo returns the messages delivered to one address.
func (s *CapturingSender) SentTo(addr string) []mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mail.Message
	for _, m := range s.Sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}
