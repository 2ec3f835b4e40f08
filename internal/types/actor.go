// README: Acting user passed explicitly into every engine operation.
package types

type Role string

const (
	RoleClient  Role = "client"
	RoleCarrier Role = "carrier"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a token claim to a Role. Unknown or empty claims fall back to client.
func ParseRole(v string) Role {
	switch Role(v) {
	case RoleCarrier, RoleAdmin:
		return Role(v)
	default:
		return RoleClient
	}
}

// Actor identifies who is asking for a state change.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsZero() bool {
	return a.UserID == ""
}
