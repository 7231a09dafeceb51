package models

import "time"

// Report is an anonymous issue report submitted from the public page.
type Report struct {
	ID          int64     `json:"id" db:"id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	Detail      string    `json:"detail" db:"detail"`
	Extra       string    `json:"extra" db:"extra"`
	Screenshot1 string    `json:"screenshot1,omitempty" db:"screenshot1"`
	Screenshot2 string    `json:"screenshot2,omitempty" db:"screenshot2"`
}

type ReportSearch struct {
	From  time.Time
	To    time.Time
	Text  string
	Limit int
}
