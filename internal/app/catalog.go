package app

import (
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// BuiltinModules returns the notification types of the platform's
// feature modules. Every deployment ships these; portals enable or
// disable features upstream, unknown signal types are rejected by the
// dispatcher either way.
func BuiltinModules() []registry.Module {
	return []registry.Module{
		{Name: "note", Types: map[string]registry.Descriptor{
			"note_created": {
				Label:            "Someone posted a news item",
				Default:          domain.FreqInstant,
				CanBeAlert:       true,
				DigestRenderable: true,
				Moderatable:      true,
				SubjectText:      "{actor} posted {target} in {group}",
				SnippetTemplate:  "digest/note.txt",
				MailTemplate:     "mail/note.txt",
				SubjectTemplate:  "mail/note_subject.txt",
				AlertText:        "{actor} posted {target}",
				AlertTextMulti:   "{actor} and {count} others posted news",
				AlertTextBundle:  "{actor} posted {count} news items in {target}",
				Reason:           registry.ReasonDefault,
				DataAttributes:   map[string]string{"excerpt": "text"},
			},
			"comment_created": {
				Label:              "Someone commented on an item you follow",
				Default:            domain.FreqInstant,
				CanBeAlert:         true,
				DigestRenderable:   true,
				MultiPreferenceSet: registry.FollowedObjectSet,
				SubjectText:        "{actor} commented on {target}",
				SnippetTemplate:    "digest/comment.txt",
				MailTemplate:       "mail/comment.txt",
				SubjectTemplate:    "mail/comment_subject.txt",
				AlertText:          "{actor} commented on {target}",
				AlertTextMulti:     "{actor} and {count} others commented on {target}",
				AlertTextBundle:    "{actor} wrote {count} comments in {target}",
				Reason:             registry.ReasonDefault,
				DataAttributes:     map[string]string{"excerpt": "text"},
			},
			"liked": {
				Label:                  "Someone liked your item",
				Default:                domain.FreqNever,
				CanBeAlert:             true,
				AllowCreatorAsAudience: true,
				SubjectText:            "{actor} likes {target}",
				MailTemplate:           "mail/liked.txt",
				SubjectTemplate:        "mail/liked_subject.txt",
				AlertText:              "{actor} likes {target}",
				AlertTextMulti:         "{actor} and {count} others like {target}",
				Reason:                 registry.ReasonDefault,
			},
		}},
		{Name: "event", Types: map[string]registry.Descriptor{
			"event_created": {
				Label:            "A new event was announced",
				Default:          domain.FreqDaily,
				CanBeAlert:       true,
				DigestRenderable: true,
				Moderatable:      true,
				SubjectText:      "{actor} announced {target} in {group}",
				SnippetTemplate:  "digest/event.txt",
				MailTemplate:     "mail/event.txt",
				SubjectTemplate:  "mail/event_subject.txt",
				AlertText:        "{actor} announced {target}",
				AlertTextBundle:  "{actor} announced {count} events in {target}",
				Reason:           registry.ReasonDefault,
				DataAttributes:   map[string]string{"from_date": "start", "to_date": "end"},
			},
			"event_changed": {
				Label:              "An event you attend was changed",
				Default:            domain.FreqInstant,
				CanBeAlert:         true,
				DigestRenderable:   true,
				MultiPreferenceSet: registry.FollowedObjectSet,
				Supersedes:         []string{"event_created"},
				SubjectText:        "{actor} updated {target}",
				SnippetTemplate:    "digest/event_changed.txt",
				MailTemplate:       "mail/event_changed.txt",
				SubjectTemplate:    "mail/event_changed_subject.txt",
				AlertText:          "{actor} updated {target}",
				Reason:             registry.ReasonDefault,
			},
		}},
		{Name: "todo", Types: map[string]registry.Descriptor{
			"todo_assigned": {
				Label:           "A task was assigned to you",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				SubjectText:     "{actor} assigned {target} to you",
				MailTemplate:    "mail/todo_assigned.txt",
				SubjectTemplate: "mail/todo_assigned_subject.txt",
				AlertText:       "{actor} assigned {target} to you",
				Reason:          registry.ReasonDefault,
			},
			"todo_completed": {
				Label:                  "A task you created was completed",
				Default:                domain.FreqDaily,
				CanBeAlert:             true,
				DigestRenderable:       true,
				AllowCreatorAsAudience: true,
				SubjectText:            "{actor} completed {target}",
				SnippetTemplate:        "digest/todo_completed.txt",
				MailTemplate:           "mail/todo_completed.txt",
				SubjectTemplate:        "mail/todo_completed_subject.txt",
				AlertText:              "{actor} completed {target}",
				AlertTextBundle:        "{actor} completed {count} tasks in {target}",
				Reason:                 registry.ReasonDefault,
			},
		}},
		{Name: "file", Types: map[string]registry.Descriptor{
			"file_uploaded": {
				Label:            "A file was uploaded to one of your groups",
				Default:          domain.FreqWeekly,
				CanBeAlert:       true,
				DigestRenderable: true,
				SubjectText:      "{actor} uploaded {target} in {group}",
				SnippetTemplate:  "digest/file.txt",
				MailTemplate:     "mail/file.txt",
				SubjectTemplate:  "mail/file_subject.txt",
				AlertText:        "{actor} uploaded {target}",
				AlertTextBundle:  "{actor} uploaded {count} files in {target}",
				Reason:           registry.ReasonDefault,
			},
		}},
		{Name: "group", Types: map[string]registry.Descriptor{
			"membership_requested": {
				Label:           "Someone wants to join a group you administer",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				SubjectText:     "{actor} wants to join {group}",
				MailTemplate:    "mail/membership_request.txt",
				SubjectTemplate: "mail/membership_request_subject.txt",
				AlertText:       "{actor} wants to join {target}",
				AlertTextMulti:  "{actor} and {count} others want to join {target}",
				Reason:          registry.ReasonAdmin,
			},
			"invited": {
				Label:           "You were invited to a group",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				SubjectText:     "{actor} invited you to {target}",
				MailTemplate:    "mail/invited.txt",
				SubjectTemplate: "mail/invited_subject.txt",
				AlertText:       "{actor} invited you to {target}",
				Reason:          registry.ReasonDefault,
			},
		}},
	}
}

// BuildRegistry assembles the registry from the builtin catalog with the
// configured default for the followed-object preference set.
func BuildRegistry(followedObjectDefault domain.Frequency) (*registry.Registry, error) {
	defaults := map[string]domain.Frequency{
		registry.FollowedObjectSet: followedObjectDefault,
	}
	return registry.Build(defaults, BuiltinModules()...)
}
