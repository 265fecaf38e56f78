package enums

// ActorRole is the platform role carried in access tokens.
type ActorRole string

const (
	ActorRoleSubscriber ActorRole = "subscriber"
	ActorRoleAdmin      ActorRole = "admin"
)

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	return r == ActorRoleSubscriber || r == ActorRoleAdmin
}
