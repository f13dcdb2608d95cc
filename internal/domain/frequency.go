package domain

import (
	"fmt"
	"time"
)

// Frequency is a user's delivery frequency for a notification type.
type Frequency int

const (
	// FreqNever suppresses delivery entirely.
	FreqNever Frequency = iota
	// FreqInstant sends a mail immediately on the event.
	FreqInstant
	// FreqDaily aggregates the event into the daily digest.
	FreqDaily
	// FreqWeekly aggregates the event into the weekly digest.
	FreqWeekly
)

// String returns the canonical lowercase name.
func (f Frequency) String() string {
	switch f {
	case FreqNever:
		return "never"
	case FreqInstant:
		return "instant"
	case FreqDaily:
		return "daily"
	case FreqWeekly:
		return "weekly"
	}
	return fmt.Sprintf("frequency(%d)", int(f))
}

// Period returns the aggregation window of a digest frequency.
// Non-digest frequencies have a zero period.
func (f Frequency) Period() time.Duration {
	switch f {
	case FreqDaily:
		return 24 * time.Hour
	case FreqWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// IsDigest reports whether the frequency defers delivery to a digest run.
func (f Frequency) IsDigest() bool {
	return f == FreqDaily || f == FreqWeekly
}

// ParseFrequency parses the canonical name of a frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "never":
		return FreqNever, nil
	case "instant":
		return FreqInstant, nil
	case "daily":
		return FreqDaily, nil
	case "weekly":
		return FreqWeekly, nil
	}
	return FreqNever, fmt.Errorf("unknown frequency %q", s)
}

// LongestDigestPeriod is the widest configured digest window. Event
// retention is derived from it; see digest.RetentionFor.
const LongestDigestPeriod = 7 * 24 * time.Hour

// GlobalSetting is a user's portal-wide blanket notification setting.
type GlobalSetting int

const (
	// GlobalGroupIndividual defers to per-group and per-type preferences.
	GlobalGroupIndividual GlobalSetting = iota
	// GlobalNever suppresses all notification mail for the user.
	GlobalNever
	// GlobalInstant sends every wanted notification immediately.
	GlobalInstant
	// GlobalDaily folds every wanted notification into the daily digest.
	GlobalDaily
	// GlobalWeekly folds every wanted notification into the weekly digest.
	GlobalWeekly
)

// String returns the canonical lowercase name.
func (g GlobalSetting) String() string {
	switch g {
	case GlobalGroupIndividual:
		return "group_individual"
	case GlobalNever:
		return "never"
	case GlobalInstant:
		return "instant"
	case GlobalDaily:
		return "daily"
	case GlobalWeekly:
		return "weekly"
	}
	return fmt.Sprintf("global_setting(%d)", int(g))
}

// ParseGlobalSetting parses the canonical name of a global setting.
func ParseGlobalSetting(s string) (GlobalSetting, error) {
	switch s {
	case "group_individual":
		return GlobalGroupIndividual, nil
	case "never":
		return GlobalNever, nil
	case "instant":
		return GlobalInstant, nil
	case "daily":
		return GlobalDaily, nil
	case "weekly":
		return GlobalWeekly, nil
	}
	return GlobalGroupIndividual, fmt.Errorf("unknown global setting %q", s)
}

// DigestFrequency returns the digest frequency a global setting maps to,
// or false when the setting is not a digest one.
func (g GlobalSetting) DigestFrequency() (Frequency, bool) {
	switch g {
	case GlobalDaily:
		return FreqDaily, true
	case GlobalWeekly:
		return FreqWeekly, true
	}
	return FreqNever, false
}
