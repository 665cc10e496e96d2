package permissions

import (
	"sort"
	"strings"
)

// Permission is a bitfield representing a set of capabilities.
type Permission int64

const (
	PermReadContent          Permission = 1 << 0
	PermSendMessages         Permission = 1 << 1
	PermDonate               Permission = 1 << 2
	PermModerateChat         Permission = 1 << 3
	PermPublishAnnouncements Permission = 1 << 4
	PermUploadMedia          Permission = 1 << 5
	PermManageRooms          Permission = 1 << 6
	PermManageCampaigns      Permission = 1 << 7
	PermViewDonations        Permission = 1 << 8
	PermManageUsers          Permission = 1 << 9

	PermAll = PermReadContent | PermSendMessages | PermDonate | PermModerateChat |
		PermPublishAnnouncements | PermUploadMedia | PermManageRooms |
		PermManageCampaigns | PermViewDonations | PermManageUsers
)

// Has returns true if p contains all bits in perm.
func (p Permission) Has(perm Permission) bool { return p&perm == perm }

// Add returns p with the bits from perm set.
func (p Permission) Add(perm Permission) Permission { return p | perm }

// Remove returns p with the bits from perm cleared.
func (p Permission) Remove(perm Permission) Permission { return p &^ perm }

var permNames = map[Permission]string{
	PermReadContent:          "READ_CONTENT",
	PermSendMessages:         "SEND_MESSAGES",
	PermDonate:               "DONATE",
	PermModerateChat:         "MODERATE_CHAT",
	PermPublishAnnouncements: "PUBLISH_ANNOUNCEMENTS",
	PermUploadMedia:          "UPLOAD_MEDIA",
	PermManageRooms:          "MANAGE_ROOMS",
	PermManageCampaigns:      "MANAGE_CAMPAIGNS",
	PermViewDonations:        "VIEW_DONATIONS",
	PermManageUsers:          "MANAGE_USERS",
}

// String lists the set permission names, sorted, separated by " | ".
func (p Permission) String() string {
	if p == 0 {
		return "NONE"
	}

	var names []string
	for bit, name := range permNames {
		if p.Has(bit) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "UNKNOWN"
	}
	sort.Strings(names)
	return strings.Join(names, " | ")
}
