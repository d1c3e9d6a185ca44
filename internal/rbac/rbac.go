// Package rbac holds the stateless authorization policy: who may mutate
// shared theme content, personal progress records, and team-scoped resources.
package rbac

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

func IsAdmin(role Role) bool {
	return role == RoleAdmin
}

// CanMutateShared reports whether the requester may edit or delete a theme
// or its shared subtopic content: the content creator or an admin.
func CanMutateShared(role Role, requesterID, createdBy string) bool {
	if IsAdmin(role) {
		return true
	}
	return requesterID != "" && requesterID == createdBy
}

// CanMutatePersonal reports whether the requester may touch a personal
// progress record or its overlays. Personal records are never shared, so
// admins get no override here.
func CanMutatePersonal(requesterID, ownerID string) bool {
	return requesterID != "" && requesterID == ownerID
}

// CanMutateTeamScoped reports whether the requester may edit team-scoped
// resources (links, template, custom achievements): an active member of the
// team, or an admin.
func CanMutateTeamScoped(role Role, activeMember bool) bool {
	if IsAdmin(role) {
		return true
	}
	return activeMember
}
