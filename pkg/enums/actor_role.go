package enums

import "fmt"

// ActorRole is the caller role asserted by the upstream auth proxy.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleVendor   ActorRole = "vendor"
	RoleAdmin    ActorRole = "admin"
	RoleSystem   ActorRole = "system"
)

var validActorRoles = []ActorRole{
	RoleCustomer,
	RoleVendor,
	RoleAdmin,
	RoleSystem,
}

// String implements fmt.Stringer.
func (v ActorRole) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ActorRole.
func (v ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into a ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
