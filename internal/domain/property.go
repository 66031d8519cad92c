package domain

// DataType is the storage type HubSpot reports for a property ("type" in the
// properties API).
type DataType string

const (
	DataTypeString      DataType = "string"
	DataTypeNumber      DataType = "number"
	DataTypeBool        DataType = "bool"
	DataTypeDate        DataType = "date"
	DataTypeDateTime    DataType = "datetime"
	DataTypeEnumeration DataType = "enumeration"
)

// FieldType is the input widget HubSpot reports for a property ("fieldType").
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextArea FieldType = "textarea"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypePhone    FieldType = "phonenumber"
	FieldTypeSelect   FieldType = "select"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeCheckbox FieldType = "booleancheckbox"
	FieldTypeEmail    FieldType = "email"
)

// PropertyDescriptor describes one CRM property as returned by
// GET /crm/v3/properties/{objectType}. Descriptors are fetched once per
// object type per run and are not modified afterwards.
type PropertyDescriptor struct {
	Name           string    `json:"name"`
	Label          string    `json:"label"`
	DataType       DataType  `json:"type"`
	FieldType      FieldType `json:"fieldType"`
	GroupName      string    `json:"groupName,omitempty"`
	Options        []Option  `json:"options,omitempty"`
	HasUniqueValue bool      `json:"hasUniqueValue,omitempty"`
	Calculated     bool      `json:"calculated,omitempty"`
	Archived       bool      `json:"archived,omitempty"`
}

// Option is a selectable value of an enumeration property.
type Option struct {
	Label        string `json:"label"`
	Value        string `json:"value"`
	DisplayOrder int    `json:"displayOrder,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
}
