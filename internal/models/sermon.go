package models

import "time"

type SermonKind string

const (
	KindSermon     SermonKind = "sermon"
	KindDevotional SermonKind = "devotional"
)

type Sermon struct {
	ID          int64      `json:"id,string"`
	Title       string     `json:"title"`
	Speaker     string     `json:"speaker"`
	Kind        SermonKind `json:"kind"`
	MediaKey    string     `json:"-"`
	MediaURL    string     `json:"media_url"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	UploadedBy  int64      `json:"uploaded_by,string"`
	PublishedAt time.Time  `json:"published_at"`
}
