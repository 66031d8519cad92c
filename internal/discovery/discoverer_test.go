package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/discovery"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/hubspot/hubspottest"
)

// stubClient serves property metadata and answers each sample request with
// the next entry of samples.
type stubClient struct {
	props    []domain.PropertyDescriptor
	propsErr error
	samples  [][]*domain.Object
	requests []domain.SearchRequest
}

func (s *stubClient) ListProperties(_ context.Context, _ string) ([]domain.PropertyDescriptor, error) {
	return s.props, s.propsErr
}

func (s *stubClient) Search(_ context.Context, _ string, req domain.SearchRequest) (*domain.SearchResult, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.samples) {
		return &domain.SearchResult{}, nil
	}
	return &domain.SearchResult{Results: s.samples[i], Total: len(s.samples[i])}, nil
}

func descriptors(names ...string) []domain.PropertyDescriptor {
	out := make([]domain.PropertyDescriptor, len(names))
	for i, n := range names {
		out[i] = domain.PropertyDescriptor{Name: n}
	}
	return out
}

func sample(n int, set func(i int) map[string]string) []*domain.Object {
	out := make([]*domain.Object, n)
	for i := range out {
		out[i] = &domain.Object{ID: fmt.Sprint(i), Properties: set(i)}
	}
	return out
}

func TestOneInHundredIsRetained(t *testing.T) {
	client := &stubClient{
		props: descriptors("p", "q"),
		samples: [][]*domain.Object{sample(100, func(i int) map[string]string {
			if i == 42 {
				return map[string]string{"p": "value", "q": ""}
			}
			return map[string]string{"p": "", "q": "null"}
		})},
	}

	res, err := discovery.New(client, 0, 0.01).Discover(context.Background(), "contacts")
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, res.Properties)
	assert.Equal(t, 2, res.Total)
}

func TestThresholdAboveOnePercentDrops(t *testing.T) {
	client := &stubClient{
		props: descriptors("p"),
		samples: [][]*domain.Object{sample(100, func(i int) map[string]string {
			if i == 0 {
				return map[string]string{"p": "x"}
			}
			return map[string]string{}
		})},
	}

	res, err := discovery.New(client, 0, 0.05).Discover(context.Background(), "contacts")
	require.NoError(t, err)
	assert.Empty(t, res.Properties)
}

func TestEmptySampleSkipsOnlyThatChunk(t *testing.T) {
	names := make([]string, 90)
	for i := range names {
		names[i] = fmt.Sprintf("prop_%02d", i)
	}
	client := &stubClient{
		props: descriptors(names...),
		samples: [][]*domain.Object{
			{},
			sample(3, func(int) map[string]string { return map[string]string{"prop_85": "y"} }),
		},
	}

	res, err := discovery.New(client, 0, 0.01).Discover(context.Background(), "deals")
	require.NoError(t, err)
	assert.Equal(t, []string{"prop_85"}, res.Properties)
	require.Len(t, client.requests, 2)
}

func TestChunkingAndRequestShape(t *testing.T) {
	names := make([]string, 170)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}
	client := &stubClient{props: descriptors(names...)}

	_, err := discovery.New(client, 0, 0.01).Discover(context.Background(), "contacts")
	require.NoError(t, err)

	require.Len(t, client.requests, 3)
	assert.Len(t, client.requests[0].Properties, 80)
	assert.Len(t, client.requests[2].Properties, 10)
	req := client.requests[0]
	assert.Equal(t, 100, req.Limit)
	require.Len(t, req.FilterGroups, 1)
	assert.Equal(t, domain.Filter{PropertyName: "hs_object_id", Operator: domain.OperatorHasProperty}, req.FilterGroups[0].Filters[0])

	tickets := &stubClient{props: descriptors(names...)}
	_, err = discovery.New(tickets, 0, 0.01).Discover(context.Background(), "tickets")
	require.NoError(t, err)
	require.Len(t, tickets.requests, 3)
	assert.Len(t, tickets.requests[0].Properties, 60)
	assert.Equal(t, 50, tickets.requests[0].Limit)
}

func TestUnionAcrossChunksDeduplicates(t *testing.T) {
	names := make([]string, 81)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}
	client := &stubClient{
		props: descriptors(names...),
		samples: [][]*domain.Object{
			sample(2, func(int) map[string]string { return map[string]string{"p0": "a", "p79": "b"} }),
			sample(2, func(int) map[string]string { return map[string]string{"p80": "c"} }),
		},
	}

	res, err := discovery.New(client, 0, 0.01).Discover(context.Background(), "deals")
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p79", "p80"}, res.Properties)
}

func TestPauseBetweenChunks(t *testing.T) {
	names := make([]string, 200)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}
	client := &stubClient{props: descriptors(names...)}

	start := time.Now()
	_, err := discovery.New(client, 30*time.Millisecond, 0.01).Discover(context.Background(), "contacts")
	require.NoError(t, err)

	require.Len(t, client.requests, 3)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestMetadataUnavailable(t *testing.T) {
	client := &stubClient{propsErr: errors.New("503")}
	d := discovery.New(client, 0, 0.01)

	_, err := d.Discover(context.Background(), "deals")
	var unavailable *apperr.MetadataUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "deals", unavailable.ObjectType)

	res, err := d.DiscoverOrFallback(context.Background(), "deals")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, discovery.Fallback("deals"), res.Properties)
	assert.Contains(t, res.Properties, "dealname")
}

func TestHasData(t *testing.T) {
	assert.True(t, discovery.HasData("0"))
	assert.True(t, discovery.HasData("false"))
	assert.False(t, discovery.HasData("   "))
	assert.False(t, discovery.HasData("null"))
	assert.False(t, discovery.HasData("None"))
}

func TestDiscoverAgainstAPI(t *testing.T) {
	srv := hubspottest.New(t)
	srv.AddProperties("deals", "hs_object_id", "dealname", "amount", "empty_custom")
	srv.AddObject("deals", map[string]string{"dealname": "Renewal", "amount": ""})
	srv.AddObject("deals", map[string]string{"dealname": "Upsell", "amount": "1200"})

	res, err := discovery.New(srv.NewClient(), 0, 0.01).Discover(context.Background(), "deals")
	require.NoError(t, err)
	assert.Equal(t, []string{"hs_object_id", "dealname", "amount"}, res.Properties)
}
