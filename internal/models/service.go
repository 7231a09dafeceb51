package models

type Service struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"service_name"`
}

// Recipient is an email address that events can be broadcast to.
type Recipient struct {
	ID      int64  `json:"id" db:"id"`
	Address string `json:"address" db:"email_address"`
}
