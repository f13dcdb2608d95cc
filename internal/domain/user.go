package domain

import "time"

// User is the engine's view of a platform account. Recipients may also be
// virtual (invite-by-email flows): a virtual user has an email but no ID.
type User struct {
	ID            string
	Email         string
	DisplayName   string
	AvatarURL     string
	ProfileURL    string
	Locale        string
	Active        bool
	LastLoginAt   *time.Time
	TermsAccepted bool

	// PortalAdmin and PortalModerator gate the moderator audience for
	// moderatable notification types.
	PortalAdmin     bool
	PortalModerator bool
}

// Anonymous reports whether the user is a virtual (non-account) recipient.
func (u User) Anonymous() bool { return u.ID == "" }

// CanReceiveEmail reports whether a mail could physically reach the user.
func (u User) CanReceiveEmail() bool { return u.Email != "" }

// Verified reports whether the account is active, has logged in before and
// accepted the terms of service. Alerts and digests require this.
func (u User) Verified() bool {
	return !u.Anonymous() && u.Active && u.LastLoginAt != nil && u.TermsAccepted
}

// Group is a portal-scoped project or group that content belongs to.
type Group struct {
	ID        string
	PortalID  string
	Name      string
	URL       string
	AvatarURL string
	Active    bool
}
