package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCarrier    = "carrier"    // telecom system submitting call records
	RoleBilling    = "billing"    // operators reading any subscriber's bills
	RoleSubscriber = "subscriber" // token subject is the subscriber's own number
	RoleAdmin      = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Roles lists every known role.
var Roles = []string{RoleCarrier, RoleBilling, RoleSubscriber, RoleAdmin}

func IsKnown(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
