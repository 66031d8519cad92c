package domain

import (
	"regexp"
	"strings"
)

// Object types the sync works with.
const (
	ObjectContacts = "contacts"
	ObjectDeals    = "deals"
	ObjectTickets  = "tickets"
)

// ExternalKeyProperty is the property holding the stable business identity of
// a contact (a national id number). It is both the source column name and the
// CRM property name.
const ExternalKeyProperty = "no__de_cedula"

// SourceRecord is one row of a source query: column name to raw value
// (string, int64, float64, bool, time.Time, []byte or nil).
type SourceRecord map[string]any

// MappedProperties is the CRM property set derived from one SourceRecord.
// Fields whose source value was null or invalid are absent.
type MappedProperties map[string]string

// Clone returns a copy that can be handed to the CRM client.
func (m MappedProperties) Clone() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Row is a flattened record ready for a relational table.
type Row map[string]any

var keyPattern = regexp.MustCompile(`^\d{8,12}$`)

// NormalizeKey trims an external key and removes the spaces and dashes that
// source systems use as separators.
func NormalizeKey(key string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(key))
}

// ValidKey reports whether a normalized key has the 8 to 12 digit shape of a
// national id.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
