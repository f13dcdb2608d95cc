package alerts

import "time"

// SubItem is one entry of a merged alert's drop-down: an actor for
// multi-user alerts, a bundled target for bundle alerts.
type SubItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

// View is the wire shape of one alert in the in-app stream.
type View struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	URL          string    `json:"url"`
	Icon         string    `json:"icon"`
	ActorName    string    `json:"actor_name"`
	ActorIcon    string    `json:"actor_icon"`
	Subtitle     string    `json:"subtitle"`
	SubtitleIcon string    `json:"subtitle_icon"`
	Type         string    `json:"type"`
	Reason       string    `json:"reason,omitempty"`
	Counter      int       `json:"counter"`
	Seen         bool      `json:"seen"`
	Timestamp    time.Time `json:"timestamp"`
	SubItems     []SubItem `json:"sub_items,omitempty"`
}

// Serialize renders an alert for the in-app stream, filling the label
// template with current actor name and counts.
func Serialize(a *Alert) View {
	v := View{
		ID:           a.ID,
		Label:        RenderLabel(a),
		URL:          a.URL,
		Icon:         a.Icon,
		ActorName:    a.ActionUser.DisplayName,
		ActorIcon:    a.ActionUser.Icon,
		Subtitle:     a.Subtitle,
		SubtitleIcon: a.SubtitleIcon,
		Type:         a.Type.String(),
		Reason:       a.ReasonKey,
		Counter:      a.Counter,
		Seen:         a.Seen,
		Timestamp:    a.LastEventAt,
	}
	switch a.Type {
	case TypeMultiUser:
		for _, ref := range a.MultiUserList {
			v.SubItems = append(v.SubItems, SubItem{Title: ref.DisplayName, URL: ref.URL, Icon: ref.Icon})
		}
	case TypeBundle:
		for _, ref := range a.BundleList {
			v.SubItems = append(v.SubItems, SubItem{Title: ref.Title, URL: ref.URL, Icon: ref.Icon})
		}
	}
	return v
}
