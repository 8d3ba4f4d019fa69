package enums

// ActorRole identifies the caller class on authenticated endpoints.
type ActorRole string

const (
	ActorRoleUser  ActorRole = "user"
	ActorRoleAdmin ActorRole = "admin"
)

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r ActorRole) IsValid() bool {
	return r == ActorRoleUser || r == ActorRoleAdmin
}
