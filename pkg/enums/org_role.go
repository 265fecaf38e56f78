package enums

import "fmt"

// OrgRole is a subscriber's role inside an enterprise organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

var validOrgRoles = []OrgRole{
	OrgRoleOwner,
	OrgRoleAdmin,
	OrgRoleMember,
}

// IsValid reports whether the value is a known OrgRole.
func (r OrgRole) IsValid() bool {
	for _, candidate := range validOrgRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOrgRole converts raw input into an OrgRole.
func ParseOrgRole(value string) (OrgRole, error) {
	for _, candidate := range validOrgRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid org role %q", value)
}
