package identity

// UserContext carries the authenticated subject for one request. It is
// produced by the identity provider at the edge and is immutable for the
// request's lifetime.
type UserContext struct {
	UserID      string                 `json:"user_id,omitempty"`
	Role        string                 `json:"role,omitempty"`
	Permissions []string               `json:"permissions,omitempty"`
	Provider    string                 `json:"provider,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Anonymous is the user attached to requests without credentials, such as
// stdio transport sessions.
func Anonymous() *UserContext {
	return &UserContext{Role: "anonymous"}
}

// HasPermission reports whether the subject carries the named permission.
func (u *UserContext) HasPermission(name string) bool {
	for _, p := range u.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Bindings renders the subject as the policy engine's `user` binding.
func (u *UserContext) Bindings() map[string]interface{} {
	if u == nil {
		u = Anonymous()
	}
	perms := make([]interface{}, len(u.Permissions))
	for i, p := range u.Permissions {
		perms[i] = p
	}
	out := map[string]interface{}{
		"user_id":     u.UserID,
		"role":        u.Role,
		"permissions": perms,
		"provider":    u.Provider,
	}
	for k, v := range u.Extra {
		if _, reserved := out[k]; !reserved {
			out[k] = v
		}
	}
	return out
}
