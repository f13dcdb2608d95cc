// Package dispatch routes notification signals to recipients: per-signal
// preference resolution, session coalescing, instant mail, alert creation
// and the durable event record digests are built from.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/mail"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/worker"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// Overrides patches descriptor fields for one occurrence of a signal,
// e.g. a one-off subject line. Empty fields keep the registered value.
type Overrides struct {
	SubjectText     string
	MailTemplate    string
	SubjectTemplate string
	SnippetTemplate string
	Reason          string
}

// Signal is one notification occurrence raised by a feature module.
type Signal struct {
	Actor    domain.User
	Object   domain.Object
	Audience []domain.User
	TypeID   string

	Overrides *Overrides
}

func (s Signal) descriptor(reg *registry.Registry) (*registry.Descriptor, bool) {
	desc, ok := reg.Get(s.TypeID)
	if !ok {
		return nil, false
	}
	if s.Overrides == nil {
		return desc, true
	}
	patched := *desc
	if s.Overrides.SubjectText != "" {
		patched.SubjectText = s.Overrides.SubjectText
	}
	if s.Overrides.MailTemplate != "" {
		patched.MailTemplate = s.Overrides.MailTemplate
	}
	if s.Overrides.SubjectTemplate != "" {
		patched.SubjectTemplate = s.Overrides.SubjectTemplate
	}
	if s.Overrides.SnippetTemplate != "" {
		patched.SnippetTemplate = s.Overrides.SnippetTemplate
	}
	if s.Overrides.Reason != "" {
		patched.Reason = s.Overrides.Reason
	}
	return &patched, true
}

// Dispatcher coalesces signals into sessions and processes them.
type Dispatcher struct {
	registry *registry.Registry
	resolver *preferences.Resolver
	alerts   *alerts.Engine
	events   domain.EventStore
	users    domain.UserDirectory
	sender   mail.Sender
	renderer mail.Renderer

	// pools may be nil; sessions are then processed on the caller's
	// goroutine, which tests rely on.
	pools *worker.Pools

	mu       sync.Mutex
	sessions map[string][]Signal

	now func() time.Time
}

func NewDispatcher(
	reg *registry.Registry,
	resolver *preferences.Resolver,
	alertEngine *alerts.Engine,
	events domain.EventStore,
	users domain.UserDirectory,
	sender mail.Sender,
	renderer mail.Renderer,
	pools *worker.Pools,
) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		resolver: resolver,
		alerts:   alertEngine,
		events:   events,
		users:    users,
		sender:   sender,
		renderer: renderer,
		pools:    pools,
		sessions: make(map[string][]Signal),
		now:      time.Now,
	}
}

// Notify ingests one signal. Signals sharing a session id accumulate
// until one arrives with final=true; the whole session then runs in
// submission order as one unit. An empty session id processes the signal
// standalone and synchronously.
func (d *Dispatcher) Notify(ctx context.Context, sig Signal, sessionID string, final bool) error {
	if _, ok := d.registry.Get(sig.TypeID); !ok {
		return fmt.Errorf("notify: unknown notification type %q", sig.TypeID)
	}

	if sessionID == "" {
		d.processSession(ctx, "", []Signal{sig})
		return nil
	}

	d.mu.Lock()
	d.sessions[sessionID] = append(d.sessions[sessionID], sig)
	if !final {
		d.mu.Unlock()
		return nil
	}
	queue := d.sessions[sessionID]
	delete(d.sessions, sessionID)
	d.mu.Unlock()

	if d.pools == nil {
		d.processSession(ctx, sessionID, queue)
		return nil
	}
	// detached: a session runs to completion even if the triggering
	// request goes away
	return d.pools.SubmitDetached("sessions", func(taskCtx context.Context) {
		d.processSession(taskCtx, sessionID, queue)
	})
}

// Discard drops an accumulated session without processing it. Callers use
// this when the triggering action is rolled back.
func (d *Dispatcher) Discard(sessionID string) {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	d.mu.Unlock()
}

// sessionState threads the per-recipient one-shot guarantees through the
// signals of one session.
type sessionState struct {
	emailed map[string]struct{}
	alerted map[string]struct{}

	recipients   int
	emailsSent   int
	emailsFailed int
	alertsMerged int
	events       int
}

func (d *Dispatcher) processSession(ctx context.Context, sessionID string, queue []Signal) {
	state := &sessionState{
		emailed: make(map[string]struct{}),
		alerted: make(map[string]struct{}),
	}
	for _, sig := range queue {
		d.processSignal(ctx, sig, state)
	}
	logger.Info("notification session processed",
		zap.String("session_id", sessionID),
		zap.Int("signals", len(queue)),
		zap.Int("recipients", state.recipients),
		zap.Int("emails_sent", state.emailsSent),
		zap.Int("emails_failed", state.emailsFailed),
		zap.Int("alerts_merged", state.alertsMerged),
		zap.Int("events_recorded", state.events),
	)
}

func (d *Dispatcher) processSignal(ctx context.Context, sig Signal, state *sessionState) {
	desc, ok := sig.descriptor(d.registry)
	if !ok {
		logger.Error("skipping signal with unknown type", zap.String("type_id", sig.TypeID))
		return
	}
	group := domain.ObjectGroupOf(sig.Object)
	if group == nil {
		logger.Error("skipping signal for object without group",
			zap.String("type_id", sig.TypeID),
			zap.String("object_id", sig.Object.ObjectID()),
		)
		return
	}

	audience := sanitizeAudience(sig.Audience)
	state.recipients += len(audience)

	for _, recipient := range audience {
		d.processRecipient(ctx, sig, desc, group, recipient, state)
	}

	if desc.Moderatable {
		d.notifyModerators(ctx, sig, desc, group, state)
	}

	d.recordEvent(ctx, sig, group, audience, state)
}

// sanitizeAudience drops recipients that can never be reached and
// deduplicates the rest, preserving order. Anonymous recipients are kept;
// they are the invite-by-email case.
func sanitizeAudience(audience []domain.User) []domain.User {
	seen := make(map[string]struct{}, len(audience))
	out := make([]domain.User, 0, len(audience))
	for _, u := range audience {
		if !u.CanReceiveEmail() {
			continue
		}
		key := u.ID
		if u.Anonymous() {
			key = "email:" + u.Email
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

func recipientKey(u domain.User) string {
	if u.Anonymous() {
		return "email:" + u.Email
	}
	return u.ID
}

func (d *Dispatcher) processRecipient(ctx context.Context, sig Signal, desc *registry.Descriptor, group *domain.Group, recipient domain.User, state *sessionState) {
	decision, err := d.resolver.Resolve(ctx, recipient, desc, sig.Object, group)
	if err != nil {
		logger.Error("preference resolution failed, skipping recipient",
			zap.String("user_id", recipient.ID),
			zap.String("type_id", desc.ID),
			zap.Error(err),
		)
		return
	}
	key := recipientKey(recipient)

	if decision.Alert && desc.CanBeAlert {
		if _, done := state.alerted[key]; !done {
			state.alerted[key] = struct{}{}
			cand := alerts.NewCandidate(recipient.ID, desc.ID, sig.Actor, sig.Object, group)
			cand.ReasonKey = decision.AlertReason
			outcome, err := d.alerts.MergeOrCreate(ctx, cand)
			switch {
			case err != nil:
				logger.Error("alert merge failed",
					zap.String("user_id", recipient.ID),
					zap.String("type_id", desc.ID),
					zap.Error(err),
				)
			case outcome != alerts.OutcomeDropped:
				state.alertsMerged++
			}
		}
	}

	if decision.Email != preferences.ActionInstant {
		return
	}
	if _, done := state.emailed[key]; done {
		return
	}
	// the recipient is consumed for this session whether or not the send
	// succeeds; a failed recipient misses this one notification
	state.emailed[key] = struct{}{}

	if err := d.sendInstant(ctx, sig, desc, group, recipient, decision.Reason); err != nil {
		state.emailsFailed++
		logger.Error("instant mail failed",
			zap.String("user_id", recipient.ID),
			zap.String("type_id", desc.ID),
			zap.Error(err),
		)
		return
	}
	state.emailsSent++
}

func (d *Dispatcher) sendInstant(ctx context.Context, sig Signal, desc *registry.Descriptor, group *domain.Group, recipient domain.User, reason string) error {
	item := mail.RenderItem{
		TypeID:          desc.ID,
		SubjectText:     desc.SubjectText,
		MailTemplate:    desc.MailTemplate,
		SubjectTemplate: desc.SubjectTemplate,
		SnippetTemplate: desc.SnippetTemplate,
		ActorName:       sig.Actor.DisplayName,
		TargetTitle:     sig.Object.Title(),
		TargetURL:       sig.Object.URL(),
		GroupName:       group.Name,
		GroupURL:        group.URL,
		Reason:          reason,
		CreatedAt:       d.now(),
	}
	subject, body, err := d.renderer.RenderInstant(ctx, item)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return d.sender.Send(ctx, mail.Message{To: recipient.Email, Subject: subject, Body: body})
}

// notifyModerators evaluates opted-in portal admins as an extra synthetic
// audience for moderatable types. Preferences are bypassed; the moderator
// resolver decides.
func (d *Dispatcher) notifyModerators(ctx context.Context, sig Signal, desc *registry.Descriptor, group *domain.Group, state *sessionState) {
	admins, err := d.users.PortalAdmins(ctx, group.PortalID)
	if err != nil {
		logger.Error("loading portal admins failed",
			zap.String("portal_id", group.PortalID),
			zap.Error(err),
		)
		return
	}
	for _, admin := range admins {
		if admin.ID == sig.Actor.ID {
			continue
		}
		ok, err := d.resolver.ResolveModerator(ctx, admin, sig.Object)
		if err != nil {
			logger.Error("moderator resolution failed",
				zap.String("user_id", admin.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		key := recipientKey(admin)
		if _, done := state.emailed[key]; done {
			continue
		}
		state.emailed[key] = struct{}{}
		if err := d.sendInstant(ctx, sig, desc, group, admin, registry.ReasonModerator); err != nil {
			state.emailsFailed++
			logger.Error("moderator mail failed",
				zap.String("user_id", admin.ID),
				zap.Error(err),
			)
			continue
		}
		state.emailsSent++
	}
}

// recordEvent writes the one durable event per signal that digests are
// later built from. Recorded regardless of instant outcomes because some
// recipients only want the digest.
func (d *Dispatcher) recordEvent(ctx context.Context, sig Signal, group *domain.Group, audience []domain.User, state *sessionState) {
	ids := make([]string, 0, len(audience))
	for _, u := range audience {
		if !u.Anonymous() {
			ids = append(ids, u.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	ev := &domain.NotificationEvent{
		ID:          uuid.NewString(),
		PortalID:    group.PortalID,
		ActorID:     sig.Actor.ID,
		ContentType: sig.Object.ContentType(),
		ObjectID:    sig.Object.ObjectID(),
		GroupID:     group.ID,
		TypeID:      sig.TypeID,
		Audience:    ids,
		CreatedAt:   d.now(),
	}
	if err := d.events.CreateEvent(ctx, ev); err != nil {
		logger.Error("recording notification event failed",
			zap.String("type_id", sig.TypeID),
			zap.Error(err),
		)
		return
	}
	state.events++
}
