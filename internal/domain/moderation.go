package domain

// DefaultReportThreshold is the report count a post may reach and stay up.
const DefaultReportThreshold = 10

// ModerationPolicy decides when crowd reports remove a post.
type ModerationPolicy struct {
	// Threshold is the highest report count a post survives.
	Threshold int
}

// DefaultModerationPolicy removes a post on its eleventh report.
func DefaultModerationPolicy() ModerationPolicy {
	return ModerationPolicy{Threshold: DefaultReportThreshold}
}

// ShouldRemove reports whether a post with the given count must be deleted.
func (p ModerationPolicy) ShouldRemove(reports int) bool {
	return reports > p.Threshold
}
