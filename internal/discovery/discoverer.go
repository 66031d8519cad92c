// Package discovery finds which CRM properties of an object type actually
// hold data, so that later requests only ask for those.
//
// HubSpot portals carry hundreds of properties per object type and most are
// empty. The discoverer reads the property metadata, then samples live
// records chunk by chunk and keeps every property with a value in at least
// Threshold of the sample.
package discovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/logging"
)

// IdentityProperty is present on every CRM object.
const IdentityProperty = "hs_object_id"

// Client is the part of the CRM API discovery needs.
type Client interface {
	ListProperties(ctx context.Context, objectType string) ([]domain.PropertyDescriptor, error)
	Search(ctx context.Context, objectType string, req domain.SearchRequest) (*domain.SearchResult, error)
}

// Sampling controls how one object type is sampled.
type Sampling struct {
	ChunkSize   int
	SampleLimit int
}

// DefaultSampling returns the chunking used for an object type. Tickets use
// smaller chunks and samples because their responses are larger.
func DefaultSampling(objectType string) Sampling {
	if objectType == domain.ObjectTickets {
		return Sampling{ChunkSize: 60, SampleLimit: 50}
	}
	return Sampling{ChunkSize: 80, SampleLimit: 100}
}

// Result is the outcome of one discovery.
type Result struct {
	ObjectType string
	// Properties lists the retained names in first-seen order.
	Properties []string
	// Total is the number of properties the metadata endpoint reported.
	Total int
	// Fallback is set when Properties is the built-in minimal set.
	Fallback bool
}

// Discoverer samples an object type's properties.
type Discoverer struct {
	client    Client
	pause     time.Duration
	threshold float64
}

// New returns a Discoverer that waits pause between sample requests and
// keeps properties present in at least threshold (0..1) of a sample.
func New(client Client, pause time.Duration, threshold float64) *Discoverer {
	return &Discoverer{client: client, pause: pause, threshold: threshold}
}

// Discover returns the properties of objectType that hold data. It fails
// with *apperr.MetadataUnavailable when the property list cannot be read.
// Results are not cached: each call samples again.
func (d *Discoverer) Discover(ctx context.Context, objectType string) (Result, error) {
	descs, err := d.client.ListProperties(ctx, objectType)
	if err != nil {
		return Result{}, &apperr.MetadataUnavailable{ObjectType: objectType, Err: err}
	}

	names := make([]string, 0, len(descs))
	for _, p := range descs {
		if p.Archived {
			continue
		}
		names = append(names, p.Name)
	}

	sampling := DefaultSampling(objectType)
	chunks := Chunk(names, sampling.ChunkSize)
	logging.Info().
		Str("object_type", objectType).
		Int("properties", len(names)).
		Int("chunks", len(chunks)).
		Msg("discovering properties with data")

	limiter := rate.NewLimiter(rate.Every(d.pause), 1)

	seen := make(map[string]bool)
	var retained []string
	for i, chunk := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			return Result{}, err
		}

		res, err := d.client.Search(ctx, objectType, domain.SearchRequest{
			FilterGroups: []domain.FilterGroup{{Filters: []domain.Filter{
				{PropertyName: IdentityProperty, Operator: domain.OperatorHasProperty},
			}}},
			Properties: chunk,
			Limit:      sampling.SampleLimit,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			logging.Warn().Err(err).Str("object_type", objectType).Int("chunk", i+1).Msg("sample request failed, skipping chunk")
			continue
		}
		if len(res.Results) == 0 {
			logging.Debug().Str("object_type", objectType).Int("chunk", i+1).Msg("empty sample, skipping chunk")
			continue
		}

		for _, name := range Retain(chunk, res.Results, d.threshold) {
			if !seen[name] {
				seen[name] = true
				retained = append(retained, name)
			}
		}
	}

	logging.Info().
		Str("object_type", objectType).
		Int("with_data", len(retained)).
		Int("total", len(names)).
		Msg("property discovery finished")

	return Result{ObjectType: objectType, Properties: retained, Total: len(names)}, nil
}

// DiscoverOrFallback runs Discover and substitutes the built-in property set
// when metadata is unavailable or nothing was retained.
func (d *Discoverer) DiscoverOrFallback(ctx context.Context, objectType string) (Result, error) {
	res, err := d.Discover(ctx, objectType)
	var unavailable *apperr.MetadataUnavailable
	switch {
	case errors.As(err, &unavailable):
		logging.Warn().Err(err).Str("object_type", objectType).Msg("using fallback properties")
		return Result{ObjectType: objectType, Properties: Fallback(objectType), Fallback: true}, nil
	case err != nil:
		return Result{}, err
	case len(res.Properties) == 0:
		logging.Warn().Str("object_type", objectType).Msg("no property with data found, using fallback properties")
		res.Properties = Fallback(objectType)
		res.Fallback = true
	}
	return res, nil
}

// Retain returns the properties of chunk that have data in at least
// threshold of sample. The boundary is inclusive and a property needs at
// least one value regardless of threshold.
func Retain(chunk []string, sample []*domain.Object, threshold float64) []string {
	if len(sample) == 0 {
		return nil
	}
	minCount := threshold * float64(len(sample))
	var out []string
	for _, name := range chunk {
		count := 0
		for _, obj := range sample {
			if HasData(obj.Properties[name]) {
				count++
			}
		}
		if count > 0 && float64(count)+1e-9 >= minCount {
			out = append(out, name)
		}
	}
	return out
}

// HasData reports whether a sampled value counts as data.
func HasData(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	return !strings.EqualFold(v, "null") && !strings.EqualFold(v, "none")
}

// Chunk splits names into consecutive slices of at most size elements.
func Chunk(names []string, size int) [][]string {
	if size <= 0 {
		size = len(names)
	}
	var chunks [][]string
	for start := 0; start < len(names); start += size {
		end := min(start+size, len(names))
		chunks = append(chunks, names[start:end])
	}
	return chunks
}
