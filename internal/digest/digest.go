// Package digest implements the periodic digest runs: per (portal,
// frequency) it selects the events of the elapsed window, re-applies the
// preference cascade against the target frequency, renders one rolled-up
// mail per qualifying user and retires events no future run can need.
package digest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/mail"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// RunStateStore persists the end time of the last successful run per
// (portal, frequency). The window advance is the last durable step of a
// run, which makes re-invocation within the same window idempotent.
type RunStateStore interface {
	LastRun(ctx context.Context, portalID string, freq domain.Frequency) (time.Time, bool, error)
	SetLastRun(ctx context.Context, portalID string, freq domain.Frequency, end time.Time) error
}

// RetentionFor returns how long events must be kept so that no digest run
// of any configured frequency could still need them: twice the longest
// digest period plus a day of slack.
func RetentionFor(longestPeriod time.Duration) time.Duration {
	return 2*longestPeriod + 24*time.Hour
}

// Stats summarizes one digest run for operational logging.
type Stats struct {
	WindowStart time.Time
	WindowEnd   time.Time

	EventsSeen      int
	UsersConsidered int
	EmailsSent      int
	EmailsFailed    int
	EventsDeleted   int64
}

// Generator runs digests. Per-user failures are isolated; a run only
// fails as a whole when the window itself cannot be read or advanced.
type Generator struct {
	registry *registry.Registry
	prefs    preferences.Store
	events   domain.EventStore
	users    domain.UserDirectory
	groups   domain.GroupDirectory
	objects  domain.ObjectResolver
	access   domain.AccessPolicy
	sender   mail.Sender
	renderer mail.Renderer
	runs     RunStateStore

	now func() time.Time
}

func NewGenerator(
	reg *registry.Registry,
	prefs preferences.Store,
	events domain.EventStore,
	users domain.UserDirectory,
	groups domain.GroupDirectory,
	objects domain.ObjectResolver,
	access domain.AccessPolicy,
	sender mail.Sender,
	renderer mail.Renderer,
	runs RunStateStore,
) *Generator {
	return &Generator{
		registry: reg,
		prefs:    prefs,
		events:   events,
		users:    users,
		groups:   groups,
		objects:  objects,
		access:   access,
		sender:   sender,
		renderer: renderer,
		runs:     runs,
		now:      time.Now,
	}
}

// Run executes one digest pass for the portal at the target frequency.
func (g *Generator) Run(ctx context.Context, portalID string, freq domain.Frequency) (Stats, error) {
	var stats Stats
	if !freq.IsDigest() {
		return stats, fmt.Errorf("digest run: %s is not a digest frequency", freq)
	}

	now := g.now()
	start, ok, err := g.runs.LastRun(ctx, portalID, freq)
	if err != nil {
		return stats, fmt.Errorf("load digest window for portal %s: %w", portalID, err)
	}
	if !ok {
		start = now.Add(-freq.Period())
	}
	end := now
	stats.WindowStart, stats.WindowEnd = start, end

	events, err := g.events.EventsInWindow(ctx, portalID, start, end)
	if err != nil {
		return stats, fmt.Errorf("load events for portal %s: %w", portalID, err)
	}
	stats.EventsSeen = len(events)

	members, err := g.users.PortalMembers(ctx, portalID)
	if err != nil {
		return stats, fmt.Errorf("load members of portal %s: %w", portalID, err)
	}

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName
	}

	for _, user := range members {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		stats.UsersConsidered++
		sent, err := g.runUser(ctx, portalID, freq, user, events, names, start, end)
		if err != nil {
			stats.EmailsFailed++
			logger.Error("digest failed for user, continuing",
				zap.String("portal_id", portalID),
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
			continue
		}
		if sent {
			stats.EmailsSent++
		}
	}

	// the window advance is the last durable step; an aborted run re-sends
	// the same window instead of silently skipping it
	if err := g.runs.SetLastRun(ctx, portalID, freq, end); err != nil {
		return stats, fmt.Errorf("advance digest window for portal %s: %w", portalID, err)
	}

	cutoff := now.Add(-RetentionFor(domain.LongestDigestPeriod))
	deleted, err := g.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		logger.Error("event retention cleanup failed", zap.Error(err))
	}
	stats.EventsDeleted = deleted

	logger.Info("digest run completed",
		zap.String("portal_id", portalID),
		zap.String("frequency", freq.String()),
		zap.Time("window_start", start),
		zap.Time("window_end", end),
		zap.Int("events_seen", stats.EventsSeen),
		zap.Int("users_considered", stats.UsersConsidered),
		zap.Int("emails_sent", stats.EmailsSent),
		zap.Int("emails_failed", stats.EmailsFailed),
		zap.Int64("events_deleted", stats.EventsDeleted),
	)
	return stats, nil
}

// runUser renders and sends one user's digest. Returns false without error
// when the user is ineligible or nothing renderable survived filtering.
func (g *Generator) runUser(ctx context.Context, portalID string, freq domain.Frequency, user domain.User, events []*domain.NotificationEvent, names map[string]string, start, end time.Time) (bool, error) {
	if !user.Verified() || !user.CanReceiveEmail() {
		return false, nil
	}

	global, err := g.prefs.GlobalSetting(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("global setting: %w", err)
	}
	blanket := false
	switch global {
	case domain.GlobalNever, domain.GlobalInstant:
		return false, nil
	case domain.GlobalDaily, domain.GlobalWeekly:
		f, _ := global.DigestFrequency()
		if f != freq {
			return false, nil
		}
		blanket = true
	}

	memberGroups, err := g.groups.MemberGroupIDs(ctx, user.ID, portalID)
	if err != nil {
		return false, fmt.Errorf("member groups: %w", err)
	}
	memberOf := make(map[string]bool, len(memberGroups))
	for _, id := range memberGroups {
		memberOf[id] = true
	}

	var rows []preferences.GroupPreference
	if !blanket {
		if rows, err = g.prefs.GroupRows(ctx, user.ID, memberGroups); err != nil {
			return false, fmt.Errorf("preference rows: %w", err)
		}
	}
	prefIndex := indexRows(rows)

	byGroup := make(map[string][]digestItem)
	var groupOrder []string
	for _, ev := range events {
		if !ev.InAudience(user.ID) || ev.ActorID == user.ID || !memberOf[ev.GroupID] {
			continue
		}
		desc, ok := g.registry.Get(ev.TypeID)
		if !ok || !desc.DigestRenderable {
			continue
		}
		wanted, err := g.eventWanted(ctx, user, portalID, freq, blanket, prefIndex, ev, desc)
		if err != nil {
			return false, err
		}
		if !wanted {
			continue
		}

		// deleted targets and targets the user can no longer read are
		// ordinary filtering conditions, not errors
		obj, err := g.objects.ResolveObject(ctx, ev.ContentType, ev.ObjectID)
		if err != nil {
			continue
		}
		readable, err := g.access.CanRead(ctx, user, obj)
		if err != nil || !readable {
			continue
		}

		if _, seen := byGroup[ev.GroupID]; !seen {
			groupOrder = append(groupOrder, ev.GroupID)
		}
		byGroup[ev.GroupID] = append(byGroup[ev.GroupID], digestItem{event: ev, object: obj, desc: desc})
	}
	if len(byGroup) == 0 {
		return false, nil
	}

	data := mail.DigestData{
		Recipient: user,
		PortalID:  portalID,
		Frequency: freq,
		Start:     start,
		End:       end,
		Sections:  make([]mail.DigestSection, 0, len(byGroup)),
	}
	for _, groupID := range groupOrder {
		section, err := g.renderSection(ctx, groupID, byGroup[groupID], names)
		if err != nil {
			return false, err
		}
		data.Sections = append(data.Sections, section)
	}

	subject, body, err := g.renderer.RenderDigest(ctx, data)
	if err != nil {
		return false, fmt.Errorf("render digest: %w", err)
	}
	if err := g.sender.Send(ctx, mail.Message{To: user.Email, Subject: subject, Body: body, HTML: true}); err != nil {
		return false, fmt.Errorf("send digest: %w", err)
	}
	return true, nil
}

// digestTitleLimit bounds target titles inside digest lines so a single
// long headline cannot blow up the mail layout.
const digestTitleLimit = 50

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= digestTitleLimit {
		return s
	}
	return string(runes[:digestTitleLimit-1]) + "…"
}

type digestItem struct {
	event  *domain.NotificationEvent
	object domain.Object
	desc   *registry.Descriptor
}

type rowIndex struct {
	none map[string]bool
	all  map[string]domain.Frequency
	rows map[string]map[string]domain.Frequency
}

func indexRows(rows []preferences.GroupPreference) rowIndex {
	idx := rowIndex{
		none: make(map[string]bool),
		all:  make(map[string]domain.Frequency),
		rows: make(map[string]map[string]domain.Frequency),
	}
	for _, r := range rows {
		switch r.TypeID {
		case registry.NoNotificationsID:
			idx.none[r.GroupID] = true
		case registry.AllNotificationsID:
			idx.all[r.GroupID] = r.Setting
		default:
			if idx.rows[r.GroupID] == nil {
				idx.rows[r.GroupID] = make(map[string]domain.Frequency)
			}
			idx.rows[r.GroupID][r.TypeID] = r.Setting
		}
	}
	return idx
}

// eventWanted re-applies the per-group precedence of the resolver, but
// against the fixed target frequency instead of Instant.
func (g *Generator) eventWanted(ctx context.Context, user domain.User, portalID string, freq domain.Frequency, blanket bool, idx rowIndex, ev *domain.NotificationEvent, desc *registry.Descriptor) (bool, error) {
	if blanket {
		return true, nil
	}

	// set-governed types ignore group rows in digests too
	if desc.MultiPreferenceSet != "" {
		setting, ok, err := g.prefs.MultiPreference(ctx, user.ID, portalID, desc.MultiPreferenceSet)
		if err != nil {
			return false, fmt.Errorf("multi-preference: %w", err)
		}
		if !ok {
			setting, _ = g.registry.MultiPreferenceDefault(desc.MultiPreferenceSet)
		}
		return setting == freq, nil
	}

	if idx.none[ev.GroupID] {
		return false, nil
	}
	if all, ok := idx.all[ev.GroupID]; ok {
		return all == freq, nil
	}
	if row, ok := idx.rows[ev.GroupID][ev.TypeID]; ok {
		return row == freq, nil
	}
	return desc.Default == freq, nil
}

func (g *Generator) renderSection(ctx context.Context, groupID string, items []digestItem, names map[string]string) (mail.DigestSection, error) {
	group, err := g.groups.Group(ctx, groupID)
	if err != nil {
		return mail.DigestSection{}, fmt.Errorf("load group %s: %w", groupID, err)
	}

	// newest first, event id as tie-breaker for determinism
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].event, items[j].event
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	section := mail.DigestSection{Group: *group}
	for _, item := range items {
		line, err := g.renderer.RenderDigestItem(ctx, mail.RenderItem{
			TypeID:          item.desc.ID,
			SubjectText:     item.desc.SubjectText,
			SnippetTemplate: item.desc.SnippetTemplate,
			ActorName:       names[item.event.ActorID],
			TargetTitle:     truncateTitle(item.object.Title()),
			TargetURL:       item.object.URL(),
			GroupName:       group.Name,
			GroupURL:        group.URL,
			CreatedAt:       item.event.CreatedAt,
		})
		if err != nil {
			logger.Warn("digest item rendering failed, skipping item",
				zap.String("type_id", item.desc.ID),
				zap.String("object_id", item.event.ObjectID),
				zap.Error(err),
			)
			continue
		}
		section.Items = append(section.Items, line)
	}
	return section, nil
}
