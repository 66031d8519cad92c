package hubspot_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/hubspot"
	"github.com/johnwards/hubsync/internal/hubspot/hubspottest"
)

const (
	searchRoute = "POST /crm/v3/objects/{objectType}/search"
	batchRoute  = "POST /crm/v3/objects/{objectType}/batch/create"
)

func TestSearchEQ(t *testing.T) {
	srv := hubspottest.New(t)
	srv.AddObject("contacts", map[string]string{"no__de_cedula": "107150612", "email": "a@b.com"})
	srv.AddObject("contacts", map[string]string{"no__de_cedula": "203330444", "email": "c@d.com"})
	client := srv.NewClient()

	res, err := client.Search(context.Background(), "contacts", domain.SearchRequest{
		FilterGroups: []domain.FilterGroup{{Filters: []domain.Filter{
			{PropertyName: "no__de_cedula", Operator: domain.OperatorEQ, Value: "203330444"},
		}}},
		Properties: []string{"email"},
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "c@d.com", res.Results[0].Properties["email"])
	assert.NotContains(t, res.Results[0].Properties, "no__de_cedula")
	assert.Nil(t, res.Paging)
}

func TestListObjectsPaging(t *testing.T) {
	srv := hubspottest.New(t)
	for i := 0; i < 5; i++ {
		srv.AddObject("deals", map[string]string{"dealname": fmt.Sprintf("deal %d", i)})
	}
	client := srv.NewClient()

	var names []string
	after := ""
	pages := 0
	for {
		page, err := client.ListObjects(context.Background(), "deals", domain.ListOpts{Limit: 2, After: after, Properties: []string{"dealname"}})
		require.NoError(t, err)
		pages++
		for _, o := range page.Results {
			names = append(names, o.Properties["dealname"])
		}
		if !page.HasMore() {
			break
		}
		after = page.After
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"deal 0", "deal 1", "deal 2", "deal 3", "deal 4"}, names)
}

func TestCreateConflict(t *testing.T) {
	srv := hubspottest.New(t)
	existing := srv.AddObject("contacts", map[string]string{"email": "taken@example.com", "no__de_cedula": "111111111"})
	client := srv.NewClient()

	_, err := client.Create(context.Background(), "contacts", domain.CreateInput{Properties: map[string]string{
		"email": "taken@example.com", "no__de_cedula": "222222222",
	}})
	require.Error(t, err)

	var conflict *apperr.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, existing.ID, conflict.ExistingID)
}

func TestUpdateNotFound(t *testing.T) {
	srv := hubspottest.New(t)
	client := srv.NewClient()

	_, err := client.Update(context.Background(), "contacts", "999", map[string]string{"firstname": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, hubspot.ErrNotFound)

	var transport *apperr.TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, http.StatusNotFound, transport.StatusCode)
}

func TestUpdate(t *testing.T) {
	srv := hubspottest.New(t)
	obj := srv.AddObject("contacts", map[string]string{"firstname": "Ana"})
	client := srv.NewClient()

	updated, err := client.Update(context.Background(), "contacts", obj.ID, map[string]string{"firstname": "Ana María"})
	require.NoError(t, err)
	assert.Equal(t, "Ana María", updated.Properties["firstname"])
}

func TestBatchCreate(t *testing.T) {
	srv := hubspottest.New(t)
	client := srv.NewClient()

	inputs := []domain.CreateInput{
		{Properties: map[string]string{"no__de_cedula": "100000001", "email": "one@example.com"}},
		{Properties: map[string]string{"no__de_cedula": "100000002", "email": "two@example.com"}},
	}
	res := client.BatchCreate(context.Background(), "contacts", "no__de_cedula", inputs)

	assert.True(t, res.OK())
	assert.Len(t, res.Succeeded, 2)
	assert.Len(t, srv.Objects("contacts"), 2)
}

func TestBatchCreateRejectedBatchFailsEveryInput(t *testing.T) {
	srv := hubspottest.New(t)
	srv.AddObject("contacts", map[string]string{"email": "dup@example.com"})
	client := srv.NewClient()

	inputs := []domain.CreateInput{
		{Properties: map[string]string{"no__de_cedula": "100000001", "email": "fresh@example.com"}},
		{Properties: map[string]string{"no__de_cedula": "100000002", "email": "dup@example.com"}},
	}
	res := client.BatchCreate(context.Background(), "contacts", "no__de_cedula", inputs)

	assert.False(t, res.OK())
	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.True(t, apperr.IsConflict(res.Failed[0].Reason))
	assert.Len(t, srv.Objects("contacts"), 1)
}

func TestBatchCreateSharedEmailRejectsBatch(t *testing.T) {
	srv := hubspottest.New(t)
	client := srv.NewClient()

	inputs := []domain.CreateInput{
		{Properties: map[string]string{"no__de_cedula": "100000001", "email": "shared@example.com"}},
		{Properties: map[string]string{"no__de_cedula": "100000002", "email": "SHARED@example.com"}},
	}
	res := client.BatchCreate(context.Background(), "contacts", "no__de_cedula", inputs)

	assert.False(t, res.OK())
	require.Len(t, res.Failed, 2)
	var transport *apperr.TransportError
	require.True(t, errors.As(res.Failed[0].Reason, &transport))
	assert.Equal(t, http.StatusBadRequest, transport.StatusCode)
	assert.Empty(t, srv.Objects("contacts"))
}

func TestBatchCreateOverLimitSendsNothing(t *testing.T) {
	srv := hubspottest.New(t)
	client := srv.NewClient()

	inputs := make([]domain.CreateInput, hubspot.MaxBatchSize+1)
	for i := range inputs {
		inputs[i] = domain.CreateInput{Properties: map[string]string{"email": fmt.Sprintf("u%d@example.com", i)}}
	}
	res := client.BatchCreate(context.Background(), "contacts", "email", inputs)

	assert.Len(t, res.Failed, hubspot.MaxBatchSize+1)
	assert.Equal(t, 0, srv.Calls(batchRoute))
}

func TestListProperties(t *testing.T) {
	srv := hubspottest.New(t)
	srv.AddProperties("tickets", "subject", "hs_pipeline")
	client := srv.NewClient()

	props, err := client.ListProperties(context.Background(), "tickets")
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, "subject", props[0].Name)
	assert.Equal(t, domain.DataTypeString, props[0].DataType)

	_, err = client.ListProperties(context.Background(), "unknown")
	assert.ErrorIs(t, err, hubspot.ErrNotFound)
}

func TestListOwnersFollowsPaging(t *testing.T) {
	srv := hubspottest.New(t)
	for i := 0; i < 150; i++ {
		srv.AddOwner(domain.Owner{ID: fmt.Sprint(i), Email: fmt.Sprintf("o%d@example.com", i)})
	}
	client := srv.NewClient()

	owners, err := client.ListOwners(context.Background())
	require.NoError(t, err)
	assert.Len(t, owners, 150)
	assert.Equal(t, 2, srv.Calls("GET /crm/v3/owners/"))
}

func TestListPipelines(t *testing.T) {
	srv := hubspottest.New(t)
	srv.AddPipeline("deals", domain.Pipeline{ID: "default", Label: "Sales", Stages: []domain.PipelineStage{
		{ID: "won", Label: "Closed won", Metadata: map[string]string{"probability": "1.0"}},
	}})
	client := srv.NewClient()

	pipelines, err := client.ListPipelines(context.Background(), "deals")
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, "1.0", pipelines[0].Stages[0].Metadata["probability"])
}

func TestUnauthorized(t *testing.T) {
	srv := hubspottest.New(t)
	client := hubspot.New(hubspot.Options{BaseURL: srv.URL, Token: "wrong"})

	err := client.Ping(context.Background())
	var transport *apperr.TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, http.StatusUnauthorized, transport.StatusCode)
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	srv := hubspottest.New(t)
	srv.Fail(searchRoute, http.StatusInternalServerError, 10, "internal error")
	client := hubspot.New(hubspot.Options{
		BaseURL:          srv.URL,
		Token:            hubspottest.Token,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), "contacts", domain.SearchRequest{Limit: 1})
		require.Error(t, err)
	}
	assert.Equal(t, 2, srv.Calls(searchRoute), "third call must be short-circuited")
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	srv := hubspottest.New(t)
	client := hubspot.New(hubspot.Options{
		BaseURL:          srv.URL,
		Token:            hubspottest.Token,
		FailureThreshold: 1,
	})

	for i := 0; i < 3; i++ {
		_, err := client.Update(context.Background(), "contacts", "404", map[string]string{"a": "b"})
		assert.ErrorIs(t, err, hubspot.ErrNotFound)
	}
}

func TestOnRequestObservesStatus(t *testing.T) {
	srv := hubspottest.New(t)
	var seen []string
	client := hubspot.New(hubspot.Options{
		BaseURL: srv.URL,
		Token:   hubspottest.Token,
		OnRequest: func(op string, status int) {
			seen = append(seen, fmt.Sprintf("%s:%d", op, status))
		},
	})

	_, _ = client.Update(context.Background(), "contacts", "1", map[string]string{"a": "b"})
	require.NoError(t, client.Ping(context.Background()))

	assert.Equal(t, []string{"update:404", "list:200"}, seen)
}

func TestExistingID(t *testing.T) {
	assert.Equal(t, "12345", hubspot.ExistingID("Contact already exists. Existing ID: 12345"))
	assert.Equal(t, "", hubspot.ExistingID("Property values were not valid"))
}
