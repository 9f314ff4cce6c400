// Package contacts imports phone contacts from an uploaded sheet into the
// web client's address book.
package contacts

import (
	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/phone"
	"eitaa-automation/internal/spreadsheet"
)

// Normalize returns the canonical 10-digit form of raw.
func Normalize(raw string) (string, error) {
	return phone.Canonical(raw)
}

// FormatPhone renders a canonical number as "+98 XXX XXX XXXX".
func FormatPhone(canonical string) string {
	return phone.Grouped(canonical)
}

// ParseRows validates sheet rows into contacts. Rows without a name or with
// a phone that does not canonicalize are returned as invalid with a reason.
func ParseRows(rows []spreadsheet.ContactRow) ([]domain.Contact, []domain.InvalidRow) {
	var (
		valid   []domain.Contact
		invalid []domain.InvalidRow
	)
	for _, r := range rows {
		bad := func(reason string) {
			invalid = append(invalid, domain.InvalidRow{Row: r.Row, Raw: r.Name + " / " + r.Phone, Reason: reason})
		}
		if r.Name == "" {
			bad("name is empty")
			continue
		}
		if r.Phone == "" {
			bad("phone is empty")
			continue
		}
		p, err := Normalize(r.Phone)
		if err != nil {
			bad(err.Error())
			continue
		}
		valid = append(valid, domain.Contact{Name: domain.Truncate(r.Name, domain.MaxNameRunes), Phone: p})
	}
	return valid, invalid
}
