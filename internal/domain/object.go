package domain

// Object is the CRM's representation of a contact, deal or ticket.
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
	Archived   bool              `json:"archived,omitempty"`
}

// RemoteEntity is an Object found by its external key. ID is assigned by the
// CRM at creation and is never reused; ExternalKey is the stable business id.
type RemoteEntity struct {
	ID          string
	ExternalKey string
	Properties  map[string]string
}

// CreateInput holds the data needed to create a new object.
type CreateInput struct {
	Properties map[string]string `json:"properties"`
}

// ListOpts holds the parameters for listing objects.
type ListOpts struct {
	Limit      int
	After      string
	Properties []string
}

// ObjectPage is a paginated list of objects.
type ObjectPage struct {
	Results []*Object
	After   string
}

// HasMore reports whether another page follows.
func (p *ObjectPage) HasMore() bool { return p.After != "" }

// BatchFailure is one input of a batch write that did not succeed.
type BatchFailure struct {
	Input  CreateInput
	Reason error
}

// BatchResult reports the outcome of a batch create. A batch the CRM rejects
// as a whole lands entirely in Failed.
type BatchResult struct {
	Succeeded []*Object
	Failed    []BatchFailure
}

// OK reports whether every input was written.
func (r BatchResult) OK() bool { return len(r.Failed) == 0 }
