package domain

import "time"

// Contact is a validated address-book entry. Phone is canonical.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// StoredContact is a contact already added through the browser.
type StoredContact struct {
	Contact
	AddedAt time.Time `json:"added_at"`
	AddedBy string    `json:"added_by_phone"`
}

// InvalidRow describes a spreadsheet row that could not become a Contact.
type InvalidRow struct {
	Row    int    `json:"row"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// ReadyMessage is a saved message body the operator can reuse.
type ReadyMessage struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
