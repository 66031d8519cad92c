// Package identity finds the CRM record that corresponds to a source record
// by its external key.
package identity

import (
	"context"
	"errors"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/hubspot"
	"github.com/johnwards/hubsync/internal/logging"
)

// DefaultProperties are fetched with every lookup.
var DefaultProperties = []string{
	domain.ExternalKeyProperty,
	"email",
	"firstname",
	"lastname",
	"numero_asociado",
	"hs_object_id",
}

// Searcher runs CRM searches.
type Searcher interface {
	Search(ctx context.Context, objectType string, req domain.SearchRequest) (*domain.SearchResult, error)
}

// Resolver looks contacts up by external key.
type Resolver struct {
	client     Searcher
	objectType string
	properties []string
}

// New returns a Resolver for contacts that requests DefaultProperties.
func New(client Searcher) *Resolver {
	return &Resolver{client: client, objectType: domain.ObjectContacts, properties: DefaultProperties}
}

// WithProperties returns a copy requesting props instead of the defaults.
func (r *Resolver) WithProperties(props []string) *Resolver {
	c := *r
	c.properties = props
	return &c
}

// Find returns the record holding key, or nil when there is none. A key that
// is not 8 to 12 digits (after removing spaces and dashes) is reported as not
// found without calling the CRM. Transport failures come back as
// *apperr.LookupError so they are never mistaken for not-found.
func (r *Resolver) Find(ctx context.Context, key string) (*domain.RemoteEntity, error) {
	normalized := domain.NormalizeKey(key)
	if !domain.ValidKey(normalized) {
		logging.Warn().Str("key", logging.MaskKey(key)).Msg("malformed external key, treated as not found")
		return nil, nil
	}

	res, err := r.client.Search(ctx, r.objectType, domain.SearchRequest{
		FilterGroups: []domain.FilterGroup{{Filters: []domain.Filter{
			{PropertyName: domain.ExternalKeyProperty, Operator: domain.OperatorEQ, Value: normalized},
		}}},
		Properties: r.properties,
		Limit:      1,
	})
	switch {
	case errors.Is(err, hubspot.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, &apperr.LookupError{Key: logging.MaskKey(normalized), Err: err}
	case len(res.Results) == 0:
		return nil, nil
	}

	obj := res.Results[0]
	return &domain.RemoteEntity{ID: obj.ID, ExternalKey: normalized, Properties: obj.Properties}, nil
}
