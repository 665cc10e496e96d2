package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gracefellowship/fellowship/internal/permissions"
)

// Tables that publish change events.
const (
	TableMessages      = "messages"
	TableCampaigns     = "campaigns"
	TableDonations     = "donations"
	TableAnnouncements = "announcements"
)

// Topic is a parsed subscription target: a table, optionally narrowed to rows
// whose Column equals Value.
type Topic struct {
	Table  string
	Column string
	Value  int64
}

func (t Topic) String() string {
	if t.Column == "" {
		return t.Table
	}
	return t.Table + ":" + t.Column + "=" + strconv.FormatInt(t.Value, 10)
}

// allowedFilters lists, per table, the filter columns a client may use.
// An empty string means the unfiltered table topic is allowed.
var allowedFilters = map[string][]string{
	TableMessages:      {"room_id"},
	TableCampaigns:     {"", "id"},
	TableDonations:     {"campaign_id"},
	TableAnnouncements: {""},
}

// ParseTopic validates a topic string such as "messages:room_id=42".
func ParseTopic(s string) (Topic, error) {
	table, filter, hasFilter := strings.Cut(s, ":")
	cols, ok := allowedFilters[table]
	if !ok {
		return Topic{}, fmt.Errorf("unknown table %q", table)
	}

	t := Topic{Table: table}
	if hasFilter {
		col, val, ok := strings.Cut(filter, "=")
		if !ok || col == "" {
			return Topic{}, fmt.Errorf("malformed filter %q", filter)
		}
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			return Topic{}, fmt.Errorf("invalid filter value %q", val)
		}
		t.Column, t.Value = col, id
	}

	for _, c := range cols {
		if c == t.Column {
			return t, nil
		}
	}
	if t.Column == "" {
		return Topic{}, fmt.Errorf("table %q requires a filter", table)
	}
	return Topic{}, fmt.Errorf("table %q cannot be filtered by %q", table, t.Column)
}

// RequiredPermission is the capability needed to subscribe to the topic.
func (t Topic) RequiredPermission() permissions.Permission {
	if t.Table == TableDonations {
		return permissions.PermViewDonations
	}
	return permissions.PermReadContent
}

func MessagesTopic(roomID int64) string {
	return Topic{Table: TableMessages, Column: "room_id", Value: roomID}.String()
}

func CampaignsTopic() string { return TableCampaigns }

func CampaignTopic(campaignID int64) string {
	return Topic{Table: TableCampaigns, Column: "id", Value: campaignID}.String()
}

func DonationsTopic(campaignID int64) string {
	return Topic{Table: TableDonations, Column: "campaign_id", Value: campaignID}.String()
}

func AnnouncementsTopic() string { return TableAnnouncements }

const roomChannelPrefix = "room:"

// RoomChannel names the presence channel of a chat room.
func RoomChannel(roomID int64) string {
	return roomChannelPrefix + strconv.FormatInt(roomID, 10)
}

// ParseRoomChannel extracts the room id from a presence channel name.
func ParseRoomChannel(s string) (int64, error) {
	raw, ok := strings.CutPrefix(s, roomChannelPrefix)
	if !ok {
		return 0, fmt.Errorf("unknown presence channel %q", s)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id in channel %q", s)
	}
	return id, nil
}
