package domain

// RoleAdmin is the role claim that grants access to lifecycle actions.
const RoleAdmin = "admin"

// Identity is an authenticated caller as asserted by the external identity
// provider. An empty UserID is an anonymous caller.
type Identity struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// Anonymous reports whether no user is attached.
func (i Identity) Anonymous() bool { return i.UserID == "" }

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
