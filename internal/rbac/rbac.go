package rbac

type Role string
type Action string

const (
	RoleClient   Role = "client"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// String forms for storage and wire use.
const (
	RoleClientName   = string(RoleClient)
	RoleEmployeeName = string(RoleEmployee)
	RoleAdminName    = string(RoleAdmin)
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionChat   Action = "chat"
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEmployee:
		return action == ActionRead || action == ActionWrite || action == ActionChat
	case RoleClient:
		return action == ActionRead || action == ActionChat
	default:
		return false
	}
}

// Valid reports whether the string names one of the three portal roles.
// There is no default role: an unknown role is rejected, never downgraded.
func Valid(role string) bool {
	switch Role(role) {
	case RoleClient, RoleEmployee, RoleAdmin:
		return true
	default:
		return false
	}
}
