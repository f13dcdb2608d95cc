// Package registry holds the static per-type configuration of every
// notification the platform can emit. Feature modules contribute their
// descriptors at startup; after Build the registry is immutable and is
// passed by reference into the resolver, dispatcher and digest generator.
package registry

import (
	"fmt"
	"sort"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// Reserved type ids acting as per-group blanket rows rather than real
// notification types.
const (
	AllNotificationsID = "notifications.all"
	NoNotificationsID  = "notifications.none"
)

// FollowedObjectSet is the built-in multi-preference set covering all
// "something happened to content I follow" notification types.
const FollowedObjectSet = "followed_object"

// Descriptor is the immutable configuration of one notification type.
type Descriptor struct {
	// ID is the namespaced type id, `{module}.{local-id}`. Filled by Build.
	ID string

	// Label names the type in the user's preference form.
	Label string

	// Default is the frequency used when the user has no explicit row.
	Default domain.Frequency

	// CanBeAlert allows the type to create in-app alerts.
	CanBeAlert bool

	// AllowCreatorAsAudience lets the object's creator receive the
	// notification (most types exclude the author).
	AllowCreatorAsAudience bool

	// DigestRenderable marks types with rich (templated) rendering that can
	// appear in digest mails.
	DigestRenderable bool

	// Moderatable marks content that portal moderators review; the
	// dispatcher mixes opted-in portal admins into the audience.
	Moderatable bool

	// Supersedes lists local type ids whose events this type makes
	// redundant within the same session.
	Supersedes []string

	// MultiPreferenceSet binds the type to a single user-facing toggle
	// governing a family of types, independent of group.
	MultiPreferenceSet string

	// SubjectText is the mail subject for rich rendering. Supports
	// {actor}, {target} and {group} placeholders.
	SubjectText string

	// MailTemplate and SubjectTemplate reference plain-text templates for
	// non-rich types. Opaque to the engine; handed to the renderer.
	MailTemplate    string
	SubjectTemplate string

	// SnippetTemplate references the digest item template.
	SnippetTemplate string

	// AlertText templates label in-app alerts in their three merge
	// states. Optional; the alert engine falls back to SubjectText and
	// generic multi/bundle phrasings. Supports {actor}, {count} and
	// {target} placeholders.
	AlertText       string
	AlertTextMulti  string
	AlertTextBundle string

	// Reason keys the explanatory footer of instant mails.
	Reason string

	// DataAttributes maps renderer fields to object attribute names.
	// Opaque data passed through to the rendering collaborator.
	DataAttributes map[string]string
}

// Module is one feature module's contribution of notification types,
// keyed by local type id.
type Module struct {
	Name  string
	Types map[string]Descriptor
}

// Registry is the immutable set of all notification descriptors plus
// lookup tables computed once at build time.
type Registry struct {
	descriptors map[string]*Descriptor

	// multiPrefMembers maps a multi-preference-set id to its member type ids.
	multiPrefMembers map[string][]string

	// supersededBy maps a local type id to the multi-preference sets of
	// types that supersede it.
	supersededBy map[string][]string

	// multiPrefDefaults maps a set id to its default frequency.
	multiPrefDefaults map[string]domain.Frequency
}

// Build validates every module's descriptors and assembles the registry.
// A missing required field is a configuration error; the process must not
// start serving.
func Build(multiPrefDefaults map[string]domain.Frequency, modules ...Module) (*Registry, error) {
	r := &Registry{
		descriptors:       make(map[string]*Descriptor),
		multiPrefMembers:  make(map[string][]string),
		supersededBy:      make(map[string][]string),
		multiPrefDefaults: make(map[string]domain.Frequency),
	}
	for set, freq := range multiPrefDefaults {
		r.multiPrefDefaults[set] = freq
	}
	if _, ok := r.multiPrefDefaults[FollowedObjectSet]; !ok {
		r.multiPrefDefaults[FollowedObjectSet] = domain.FreqDaily
	}

	for _, mod := range modules {
		if mod.Name == "" {
			return nil, fmt.Errorf("notification module with empty name")
		}
		for localID, desc := range mod.Types {
			id := mod.Name + "." + localID
			if _, dup := r.descriptors[id]; dup {
				return nil, fmt.Errorf("duplicate notification type %q", id)
			}
			if err := validate(id, desc); err != nil {
				return nil, err
			}
			d := desc
			d.ID = id
			if d.Reason == "" {
				d.Reason = ReasonDefault
			}
			r.descriptors[id] = &d

			if d.MultiPreferenceSet != "" {
				if _, ok := r.multiPrefDefaults[d.MultiPreferenceSet]; !ok {
					return nil, fmt.Errorf("notification type %q references unknown multi-preference set %q", id, d.MultiPreferenceSet)
				}
				r.multiPrefMembers[d.MultiPreferenceSet] = append(r.multiPrefMembers[d.MultiPreferenceSet], id)
				for _, superseded := range d.Supersedes {
					r.supersededBy[superseded] = append(r.supersededBy[superseded], d.MultiPreferenceSet)
				}
			} else if len(d.Supersedes) > 0 {
				// supersession is only honoured through multi-preference sets
				return nil, fmt.Errorf("notification type %q declares supersedes without a multi-preference set", id)
			}
		}
	}

	for _, ids := range r.multiPrefMembers {
		sort.Strings(ids)
	}
	return r, nil
}

func validate(id string, d Descriptor) error {
	if d.Label == "" {
		return fmt.Errorf("notification type %q: label is required", id)
	}
	if d.DigestRenderable {
		if d.SubjectText == "" {
			return fmt.Errorf("notification type %q: subject_text is required for digest-renderable types", id)
		}
		if d.SnippetTemplate == "" {
			return fmt.Errorf("notification type %q: snippet_template is required for digest-renderable types", id)
		}
	} else {
		if d.MailTemplate == "" {
			return fmt.Errorf("notification type %q: mail_template is required", id)
		}
		if d.SubjectTemplate == "" {
			return fmt.Errorf("notification type %q: subject_template is required", id)
		}
	}
	return nil
}

// Get returns the descriptor for a namespaced type id.
func (r *Registry) Get(id string) (*Descriptor, bool) {
	d, ok := r.descriptors[id]
	return d, ok
}

// TypeIDs returns all namespaced type ids in sorted order.
func (r *Registry) TypeIDs() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MultiPreferenceMembers returns the type ids governed by a
// multi-preference set.
func (r *Registry) MultiPreferenceMembers(setID string) []string {
	return r.multiPrefMembers[setID]
}

// MultiPreferenceSets returns all multi-preference set ids in sorted
// order.
func (r *Registry) MultiPreferenceSets() []string {
	sets := make([]string, 0, len(r.multiPrefMembers))
	for id := range r.multiPrefMembers {
		sets = append(sets, id)
	}
	sort.Strings(sets)
	return sets
}

// MultiPreferenceDefault returns the default frequency of a
// multi-preference set.
func (r *Registry) MultiPreferenceDefault(setID string) (domain.Frequency, bool) {
	f, ok := r.multiPrefDefaults[setID]
	return f, ok
}

// SupersedingSets returns the multi-preference sets whose member types
// supersede the given local type id.
func (r *Registry) SupersedingSets(localID string) []string {
	return r.supersededBy[localID]
}

// Reason keys for the explanatory footer of instant mails. The moderator
// reason is deliberately a stable, filterable token.
const (
	ReasonDefault      = "default"
	ReasonAdmin        = "admin"
	ReasonPortalAdmin  = "portal_admin"
	ReasonDailyDigest  = "daily_digest"
	ReasonWeeklyDigest = "weekly_digest"
	ReasonModerator    = "moderator_alert"
)

// ReasonText returns the untranslated footer text for a reason key, or ""
// when the footer should be omitted.
func ReasonText(key string) string {
	switch key {
	case ReasonDefault:
		return "You are getting this notification because you are subscribed to these kinds of events in your project or group."
	case ReasonAdmin:
		return "You are getting this notification because you are an administrator of this project or group."
	case ReasonPortalAdmin:
		return "You are getting this notification because you are an administrator of this portal."
	case ReasonDailyDigest:
		return "You are getting this email because you are subscribed to one or more daily notifications."
	case ReasonWeeklyDigest:
		return "You are getting this email because you are subscribed to one or more weekly notifications."
	case ReasonModerator:
		// untranslated so that moderators can mail-filter on the token
		return "This is a Portal Moderator notification. Filter your mails using this token: PORTALMODERATORALERT."
	}
	return ""
}
