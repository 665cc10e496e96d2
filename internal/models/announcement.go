package models

import "time"

type Announcement struct {
	ID        int64     `json:"id,string"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	AuthorID  int64     `json:"author_id,string"`
	CreatedAt time.Time `json:"created_at"`
}
