package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// RenderItem is the rendering context for one notification occurrence.
// Template references come from the type descriptor (possibly patched by
// per-signal overrides); the renderer decides what to do with them.
type RenderItem struct {
	TypeID      string
	SubjectText string

	MailTemplate    string
	SubjectTemplate string
	SnippetTemplate string

	ActorName   string
	TargetTitle string
	TargetURL   string
	GroupName   string
	GroupURL    string

	// Reason is the reason key for the explanatory mail footer.
	Reason string

	CreatedAt time.Time
}

// DigestSection is one group's block inside a digest mail.
type DigestSection struct {
	Group domain.Group
	Items []string
}

// DigestData is the rendering context for one digest mail.
type DigestData struct {
	Recipient domain.User
	PortalID  string
	Frequency domain.Frequency
	Start     time.Time
	End       time.Time
	Sections  []DigestSection
}

// Renderer turns notification data into mail subjects and bodies. The
// templating language is deliberately not part of the engine; PlainRenderer
// is the built-in text fallback and portals plug in their own.
type Renderer interface {
	RenderInstant(ctx context.Context, item RenderItem) (subject, body string, err error)
	RenderDigestItem(ctx context.Context, item RenderItem) (string, error)
	RenderDigest(ctx context.Context, d DigestData) (subject, body string, err error)
}

// PlainRenderer renders plain-text mails from the descriptor's subject
// text, substituting {actor}, {target} and {group} placeholders.
type PlainRenderer struct{}

var _ Renderer = PlainRenderer{}

func fillPlaceholders(tmpl string, item RenderItem) string {
	r := strings.NewReplacer(
		"{actor}", item.ActorName,
		"{target}", item.TargetTitle,
		"{group}", item.GroupName,
	)
	return r.Replace(tmpl)
}

func (PlainRenderer) RenderInstant(ctx context.Context, item RenderItem) (string, string, error) {
	subject := fillPlaceholders(item.SubjectText, item)
	if subject == "" {
		subject = item.TargetTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", subject)
	if item.TargetTitle != "" {
		fmt.Fprintf(&b, "%s\n%s\n", item.TargetTitle, item.TargetURL)
	}
	if reason := registry.ReasonText(item.Reason); reason != "" {
		fmt.Fprintf(&b, "\n--\n%s\n", reason)
	}
	return subject, b.String(), nil
}

func (PlainRenderer) RenderDigestItem(ctx context.Context, item RenderItem) (string, error) {
	line := fillPlaceholders(item.SubjectText, item)
	if line == "" {
		line = item.TargetTitle
	}
	if item.TargetURL != "" {
		line += " <" + item.TargetURL + ">"
	}
	return line, nil
}

func (PlainRenderer) RenderDigest(ctx context.Context, d DigestData) (string, string, error) {
	subject := fmt.Sprintf("Your %s digest", d.Frequency)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nhere is what happened since %s:\n", d.Recipient.DisplayName, d.Start.Format("2006-01-02"))
	for _, sec := range d.Sections {
		fmt.Fprintf(&b, "\n%s\n", sec.Group.Name)
		for _, item := range sec.Items {
			fmt.Fprintf(&b, "  - %s\n", item)
		}
	}
	return subject, b.String(), nil
}
