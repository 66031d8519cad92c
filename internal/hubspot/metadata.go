package hubspot

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/johnwards/hubsync/internal/domain"
)

type propertyList struct {
	Results []domain.PropertyDescriptor `json:"results"`
}

// ListProperties returns every property definition of an object type.
func (c *Client) ListProperties(ctx context.Context, objectType string) ([]domain.PropertyDescriptor, error) {
	var out propertyList
	path := "/crm/v3/properties/" + url.PathEscape(objectType)
	if _, err := c.do(ctx, "properties", http.MethodGet, path, nil, &out); err != nil {
		return nil, classify("list properties "+objectType, err)
	}
	return out.Results, nil
}

type ownerList struct {
	Results []domain.Owner `json:"results"`
	Paging  *domain.Paging `json:"paging,omitempty"`
}

// ListOwners returns all active owners, following the paging cursor.
func (c *Client) ListOwners(ctx context.Context) ([]domain.Owner, error) {
	var owners []domain.Owner
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(MaxBatchSize))
		if after != "" {
			q.Set("after", after)
		}
		var page ownerList
		if _, err := c.do(ctx, "owners", http.MethodGet, "/crm/v3/owners/?"+q.Encode(), nil, &page); err != nil {
			return nil, classify("list owners", err)
		}
		owners = append(owners, page.Results...)
		after = page.Paging.NextAfter()
		if after == "" {
			return owners, nil
		}
	}
}

type pipelineList struct {
	Results []domain.Pipeline `json:"results"`
}

// ListPipelines returns the pipelines, with their stages, of deals or
// tickets.
func (c *Client) ListPipelines(ctx context.Context, objectType string) ([]domain.Pipeline, error) {
	var out pipelineList
	path := "/crm/v3/pipelines/" + url.PathEscape(objectType)
	if _, err := c.do(ctx, "pipelines", http.MethodGet, path, nil, &out); err != nil {
		return nil, classify("list pipelines "+objectType, err)
	}
	return out.Results, nil
}
