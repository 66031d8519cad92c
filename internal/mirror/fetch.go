package mirror

import (
	"context"

	"github.com/johnwards/hubsync/internal/discovery"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
)

// Lister pages through objects.
type Lister interface {
	ListObjects(ctx context.Context, objectType string, opts domain.ListOpts) (*domain.ObjectPage, error)
}

// FetchAll returns every object of objectType with props. When props is too
// long for one request, objects are fetched once per group of
// PropertyBatchSize properties (each group also asks for hs_object_id) and
// the groups are merged by object id, keeping the order objects were first
// seen.
func FetchAll(ctx context.Context, l Lister, objectType string, props []string) ([]*domain.Object, error) {
	if len(props) <= MaxPropertiesPerRequest {
		return fetchPages(ctx, l, objectType, props)
	}

	rest := make([]string, 0, len(props))
	for _, p := range props {
		if p != discovery.IdentityProperty {
			rest = append(rest, p)
		}
	}
	groups := discovery.Chunk(rest, PropertyBatchSize)

	byID := make(map[string]*domain.Object)
	var order []string
	for i, group := range groups {
		batch := append([]string{discovery.IdentityProperty}, group...)
		objs, err := fetchPages(ctx, l, objectType, batch)
		if err != nil {
			return nil, err
		}
		for _, o := range objs {
			merged, ok := byID[o.ID]
			if !ok {
				merged = &domain.Object{ID: o.ID, Properties: map[string]string{}, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt}
				byID[o.ID] = merged
				order = append(order, o.ID)
			}
			for k, v := range o.Properties {
				merged.Properties[k] = v
			}
		}
		logging.Debug().
			Str("object_type", objectType).
			Int("group", i+1).
			Int("groups", len(groups)).
			Int("objects", len(byID)).
			Msg("property group fetched")
	}

	out := make([]*domain.Object, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func fetchPages(ctx context.Context, l Lister, objectType string, props []string) ([]*domain.Object, error) {
	var all []*domain.Object
	after := ""
	for {
		page, err := l.ListObjects(ctx, objectType, domain.ListOpts{Limit: PageSize, After: after, Properties: props})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if !page.HasMore() {
			return all, nil
		}
		after = page.After
	}
}
