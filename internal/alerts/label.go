package alerts

import (
	"strconv"
	"strings"

	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// labelFor returns the untranslated label template matching the alert's
// merge state. Pure function of descriptor and alert; called on creation
// and after every merge so displayed counts stay current.
func labelFor(desc *registry.Descriptor, a *Alert) string {
	switch a.Type {
	case TypeMultiUser:
		if desc.AlertTextMulti != "" {
			return desc.AlertTextMulti
		}
		return "{actor} and {count} others: {target}"
	case TypeBundle:
		if desc.AlertTextBundle != "" {
			return desc.AlertTextBundle
		}
		return "{actor} added {count} items in {target}"
	default:
		if desc.AlertText != "" {
			return desc.AlertText
		}
		if desc.SubjectText != "" {
			return desc.SubjectText
		}
		return "{actor}: {target}"
	}
}

// RenderLabel fills an alert's label template for display. {count} is the
// number of additional actors for multi-user alerts and the number of
// bundled items for bundle alerts. Localization happens in the caller's
// rendering layer; this is the built-in fallback.
func RenderLabel(a *Alert) string {
	count := 0
	switch a.Type {
	case TypeMultiUser:
		count = len(a.MultiUserList) - 1
	case TypeBundle:
		count = len(a.BundleList)
	}
	target := a.Title
	if a.Type == TypeBundle {
		target = a.Subtitle
	}
	r := strings.NewReplacer(
		"{actor}", a.ActionUser.DisplayName,
		"{count}", strconv.Itoa(count),
		"{target}", target,
	)
	return r.Replace(a.Label)
}
