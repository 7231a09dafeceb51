package models

type Contact struct {
	ID             int64  `json:"id" db:"id"`
	Order          int    `json:"order" db:"sort_order"`
	Name           string `json:"name" db:"name"`
	ContactDetails string `json:"contact_details" db:"contact_details"`
	Hidden         bool   `json:"hidden" db:"hidden"`
}
