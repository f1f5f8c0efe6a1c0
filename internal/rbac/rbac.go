package rbac

type Role string
type Action string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead         Action = "read"
	ActionConnect      Action = "connect"
	ActionCreateCustom Action = "create_custom"
	ActionManageCustom Action = "manage_custom"
	ActionViewEvents   Action = "view_events"
	ActionManageOthers Action = "manage_others"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMember:
		return action != ActionManageOthers
	default:
		return false
	}
}

// CanManageCustom reports whether userID may delete, publish or unpublish a
// custom integration created by createdBy.
func CanManageCustom(role Role, userID, createdBy string) bool {
	if !Can(role, ActionManageCustom) {
		return false
	}
	if userID != "" && userID == createdBy {
		return true
	}
	return Can(role, ActionManageOthers)
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
