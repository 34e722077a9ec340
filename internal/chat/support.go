package chat

// SupportMode says who is handling the conversation.
type SupportMode string

const (
	ModeNormal       SupportMode = "normal"
	ModeHumanSupport SupportMode = "human_support"
	ModeResolved     SupportMode = "resolved"
)

// ParseSupportMode returns false for anything that is not one of the three modes.
func ParseSupportMode(s string) (SupportMode, bool) {
	switch SupportMode(s) {
	case ModeNormal, ModeHumanSupport, ModeResolved:
		return SupportMode(s), true
	}
	return "", false
}

// Effective maps resolved to normal. Only the load path uses it: a resolved chat is
// a live closure signal, not something to resume into.
func (m SupportMode) Effective() SupportMode {
	if m == ModeResolved {
		return ModeNormal
	}
	return m
}

// SupportState is the read projection of the support-mode machine.
type SupportState struct {
	Mode                    SupportMode `json:"mode"`
	IsHumanSupportRequested bool        `json:"isHumanSupportRequested"`
}
