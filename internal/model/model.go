package model

import "time"

// ShortLink maps one original URL to one short code. Only ClickCount changes
// after creation.
type ShortLink struct {
	ID          int64     `db:"id" json:"id"`
	ShortCode   string    `db:"short_code" json:"short_code"`
	OriginalURL string    `db:"original_url" json:"original_url"`
	ClickCount  int64     `db:"click_count" json:"click_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Clone returns a copy safe to hand to another goroutine.
func (l *ShortLink) Clone() *ShortLink {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
