package conversation

import "github.com/axiomtrader/assistant/internal/obs"

// FixedRefusalMessage is returned verbatim to any user not on the allow
// list (spec.md §4.8: "unauthorized users receive a fixed refusal message
// and the attempt is logged").
const FixedRefusalMessage = "You are not authorized to use this assistant."

// AllowList gates access by user identifier.
type AllowList struct {
	allowed map[string]bool
}

// NewAllowList builds an allow list from a set of user identifiers.
func NewAllowList(userIDs []string) *AllowList {
	a := &AllowList{allowed: make(map[string]bool, len(userIDs))}
	for _, id := range userIDs {
		a.allowed[id] = true
	}
	return a
}

// Check reports whether userID is authorized, logging every unauthorized
// attempt.
func (a *AllowList) Check(userID string) bool {
	if a.allowed[userID] {
		return true
	}
	obs.Component("conversation").Warn().Str("user_id", userID).Msg("unauthorized access attempt")
	return false
}
