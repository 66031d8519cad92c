package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/johnwards/hubsync/internal/domain"
)

// MaxBatchSize is the largest number of inputs a batch endpoint accepts.
const MaxBatchSize = 100

// MaxSearchLimit is the largest page a search request may ask for.
const MaxSearchLimit = 200

func objectsPath(objectType string) string {
	return "/crm/v3/objects/" + url.PathEscape(objectType)
}

// Search runs a CRM search. A 404 (unknown object type) is returned as an
// error matching ErrNotFound.
func (c *Client) Search(ctx context.Context, objectType string, req domain.SearchRequest) (*domain.SearchResult, error) {
	if req.Limit > MaxSearchLimit {
		req.Limit = MaxSearchLimit
	}
	var out domain.SearchResult
	_, err := c.do(ctx, "search", http.MethodPost, objectsPath(objectType)+"/search", req, &out)
	if err != nil {
		return nil, classify("search "+objectType, err)
	}
	return &out, nil
}

type objectList struct {
	Results []*domain.Object `json:"results"`
	Paging  *domain.Paging   `json:"paging,omitempty"`
}

// ListObjects returns one page of objects with the requested properties.
func (c *Client) ListObjects(ctx context.Context, objectType string, opts domain.ListOpts) (*domain.ObjectPage, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.After != "" {
		q.Set("after", opts.After)
	}
	if len(opts.Properties) > 0 {
		q.Set("properties", strings.Join(opts.Properties, ","))
	}
	path := objectsPath(objectType)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out objectList
	if _, err := c.do(ctx, "list", http.MethodGet, path, nil, &out); err != nil {
		return nil, classify("list "+objectType, err)
	}
	return &domain.ObjectPage{Results: out.Results, After: out.Paging.NextAfter()}, nil
}

// Create creates a single object.
func (c *Client) Create(ctx context.Context, objectType string, in domain.CreateInput) (*domain.Object, error) {
	var out domain.Object
	if _, err := c.do(ctx, "create", http.MethodPost, objectsPath(objectType), in, &out); err != nil {
		return nil, classify("create "+objectType, err)
	}
	return &out, nil
}

// Update patches the properties of the object with the given id.
func (c *Client) Update(ctx context.Context, objectType, id string, props map[string]string) (*domain.Object, error) {
	var out domain.Object
	path := objectsPath(objectType) + "/" + url.PathEscape(id)
	if _, err := c.do(ctx, "update", http.MethodPatch, path, domain.CreateInput{Properties: props}, &out); err != nil {
		return nil, classify("update "+objectType, err)
	}
	return &out, nil
}

type batchCreateRequest struct {
	Inputs []domain.CreateInput `json:"inputs"`
}

type batchResponse struct {
	Status    string           `json:"status"`
	Results   []*domain.Object `json:"results"`
	NumErrors int              `json:"numErrors,omitempty"`
	Errors    []APIError       `json:"errors,omitempty"`
}

// BatchCreate creates up to MaxBatchSize objects in one request. It never
// returns an error: a rejected request puts every input in Failed with the
// same reason. On a partial (207) response, inputs whose keyProperty value
// is not among the created objects are reported as failed.
func (c *Client) BatchCreate(ctx context.Context, objectType, keyProperty string, inputs []domain.CreateInput) domain.BatchResult {
	if len(inputs) == 0 {
		return domain.BatchResult{}
	}
	if len(inputs) > MaxBatchSize {
		return failAll(inputs, fmt.Errorf("batch of %d exceeds the limit of %d", len(inputs), MaxBatchSize))
	}

	var out batchResponse
	status, err := c.do(ctx, "batch_create", http.MethodPost, objectsPath(objectType)+"/batch/create", batchCreateRequest{Inputs: inputs}, &out)
	if err != nil {
		return failAll(inputs, classify("batch create "+objectType, err))
	}
	if status != http.StatusMultiStatus && out.NumErrors == 0 && len(out.Errors) == 0 {
		return domain.BatchResult{Succeeded: out.Results}
	}

	created := make(map[string]bool, len(out.Results))
	for _, obj := range out.Results {
		created[obj.Properties[keyProperty]] = true
	}
	reason := batchReason(out.Errors)
	res := domain.BatchResult{Succeeded: out.Results}
	for _, in := range inputs {
		if keyProperty != "" && created[in.Properties[keyProperty]] {
			continue
		}
		res.Failed = append(res.Failed, domain.BatchFailure{Input: in, Reason: reason})
	}
	return res
}

func batchReason(errs []APIError) error {
	if len(errs) == 0 {
		return fmt.Errorf("batch partially failed")
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	first := errs[0]
	first.StatusCode = http.StatusMultiStatus
	first.Message = strings.Join(msgs, "; ")
	return classify("batch create", &first)
}

func failAll(inputs []domain.CreateInput, reason error) domain.BatchResult {
	res := domain.BatchResult{Failed: make([]domain.BatchFailure, 0, len(inputs))}
	for _, in := range inputs {
		res.Failed = append(res.Failed, domain.BatchFailure{Input: in, Reason: reason})
	}
	return res
}
