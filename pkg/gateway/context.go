package gateway

// RequestContext is the resolved identity of one user-facing request.
//
// It replaces any implicit thread-local user state: every orchestrator and
// pipeline call receives it explicitly. A zero UserID means the request is
// unauthenticated.
type RequestContext struct {
	// UserID is the authenticated user, resolved by the HTTP auth middleware.
	UserID string

	// FamilyIDs lists the families the user is a member of.
	FamilyIDs []string

	// TraceID identifies the request across logs, audit records and responses.
	TraceID string

	// ClientIP is the remote address with the port stripped.
	ClientIP string
}

// Authenticated reports whether a user identity is present.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.UserID != ""
}

// MemberOf reports whether the user belongs to the given family.
func (rc *RequestContext) MemberOf(familyID string) bool {
	if rc == nil {
		return false
	}
	for _, id := range rc.FamilyIDs {
		if id == familyID {
			return true
		}
	}
	return false
}
