package mapping

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/johnwards/hubsync/internal/domain"
)

// Kind selects the coercion applied to a source value.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindBoolean
	KindNumber
	KindDate
	KindPhone
	KindSelect
	KindEmail
)

var kindNames = map[Kind]string{
	KindText:    "text",
	KindBoolean: "boolean",
	KindNumber:  "number",
	KindDate:    "date",
	KindPhone:   "phone",
	KindSelect:  "select",
	KindEmail:   "email",
}

var kindAliases = map[string]Kind{
	"text":            KindText,
	"string":          KindText,
	"textarea":        KindText,
	"boolean":         KindBoolean,
	"bool":            KindBoolean,
	"checkbox":        KindBoolean,
	"booleancheckbox": KindBoolean,
	"number":          KindNumber,
	"date":            KindDate,
	"phone":           KindPhone,
	"phonenumber":     KindPhone,
	"select":          KindSelect,
	"enum":            KindSelect,
	"enumeration":     KindSelect,
	"radio":           KindSelect,
	"email":           KindEmail,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the defined coercions.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind accepts the kind names and the HubSpot field type names.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("unknown coercion kind %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*k = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// KindOf returns the coercion matching a CRM property definition.
func KindOf(p domain.PropertyDescriptor) Kind {
	switch p.FieldType {
	case domain.FieldTypeCheckbox:
		return KindBoolean
	case domain.FieldTypeNumber:
		return KindNumber
	case domain.FieldTypeDate:
		return KindDate
	case domain.FieldTypePhone:
		return KindPhone
	case domain.FieldTypeSelect, domain.FieldTypeRadio:
		return KindSelect
	case domain.FieldTypeEmail:
		return KindEmail
	}
	switch p.DataType {
	case domain.DataTypeBool:
		return KindBoolean
	case domain.DataTypeNumber:
		return KindNumber
	case domain.DataTypeDate, domain.DataTypeDateTime:
		return KindDate
	case domain.DataTypeEnumeration:
		return KindSelect
	}
	return KindText
}
