package models

// Setting is one row of the runtime key/value configuration table.
type Setting struct {
	Name         string `json:"name" db:"config_name"`
	FriendlyName string `json:"friendly_name" db:"friendly_name"`
	Value        string `json:"value" db:"config_value"`
	Description  string `json:"description" db:"description"`
	Category     string `json:"category" db:"category"`
	Display      string `json:"display" db:"display"`
}
