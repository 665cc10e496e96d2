package permissions

import "github.com/gracefellowship/fellowship/internal/models"

var (
	memberPerms      = PermReadContent | PermSendMessages | PermDonate
	leaderPerms      = memberPerms | PermModerateChat | PermPublishAnnouncements | PermUploadMedia
	superLeaderPerms = leaderPerms | PermManageRooms | PermManageCampaigns | PermViewDonations
)

// ForRole returns the capability set granted to a role. Unknown roles get
// read access only.
//
//	member       read, chat, donate
//	leader       + moderate chat, announcements, media uploads
//	super_leader + rooms, campaigns, donation reports
//	admin        everything, including role assignment
func ForRole(role models.Role) Permission {
	switch role {
	case models.RoleAdmin:
		return PermAll
	case models.RoleSuperLeader:
		return superLeaderPerms
	case models.RoleLeader:
		return leaderPerms
	case models.RoleMember:
		return memberPerms
	default:
		return PermReadContent
	}
}

// CanDeleteMessage reports whether actor may soft-delete a message written by
// authorID: the author always may, moderators may delete anyone's.
func CanDeleteMessage(actorID int64, actorRole models.Role, authorID int64) bool {
	if actorID == authorID {
		return true
	}
	return ForRole(actorRole).Has(PermModerateChat)
}
