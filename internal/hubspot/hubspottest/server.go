// Package hubspottest provides an in-memory HubSpot CRM API for tests. It
// speaks the same routes, paging and error format as the real API for the
// subset the sync uses.
package hubspottest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/hubspot"
)

// Token is the bearer token the server accepts.
const Token = "test-token"

type contextKey int

const correlationIDKey contextKey = iota

type failure struct {
	status  int
	message string
	times   int
}

// Server is an httptest server backed by in-memory objects.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	nextID     int
	objects    map[string][]*domain.Object
	properties map[string][]domain.PropertyDescriptor
	unique     map[string][]string
	owners     []domain.Owner
	pipelines  map[string][]domain.Pipeline
	failures   map[string]*failure
	calls      map[string]int
}

// New starts a server and closes it when the test ends. Contacts have a
// unique email, as in HubSpot.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		nextID:     1000,
		objects:    map[string][]*domain.Object{},
		properties: map[string][]domain.PropertyDescriptor{},
		unique:     map[string][]string{domain.ObjectContacts: {"email"}},
		pipelines:  map[string][]domain.Pipeline{},
		failures:   map[string]*failure{},
		calls:      map[string]int{},
	}

	mux := http.NewServeMux()
	s.route(mux, "GET /crm/v3/properties/{objectType}", s.listProperties)
	s.route(mux, "GET /crm/v3/objects/{objectType}", s.list)
	s.route(mux, "POST /crm/v3/objects/{objectType}", s.create)
	s.route(mux, "PATCH /crm/v3/objects/{objectType}/{objectId}", s.update)
	s.route(mux, "POST /crm/v3/objects/{objectType}/search", s.search)
	s.route(mux, "POST /crm/v3/objects/{objectType}/batch/create", s.batchCreate)
	s.route(mux, "GET /crm/v3/owners/", s.listOwners)
	s.route(mux, "GET /crm/v3/pipelines/{objectType}", s.listPipelines)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, hubspot.CategoryObjectNotFound, "No route found for "+r.Method+" "+r.URL.Path, r)
	})

	s.Server = httptest.NewServer(withCorrelationID(mux))
	t.Cleanup(s.Close)
	return s
}

// NewClient returns a hubspot.Client pointed at the server with no pacing.
func (s *Server) NewClient() *hubspot.Client {
	return hubspot.New(hubspot.Options{BaseURL: s.URL, Token: Token})
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "INVALID_AUTHENTICATION", "Authentication credentials not found.", r)
			return
		}

		s.mu.Lock()
		s.calls[pattern]++
		f := s.failures[pattern]
		if f != nil && f.times > 0 {
			f.times--
			s.mu.Unlock()
			category := "INTERNAL_ERROR"
			switch f.status {
			case http.StatusConflict:
				category = hubspot.CategoryConflict
			case http.StatusTooManyRequests:
				category = hubspot.CategoryRateLimits
			case http.StatusBadRequest:
				category = hubspot.CategoryValidationError
			}
			writeError(w, f.status, category, f.message, r)
			return
		}
		s.mu.Unlock()

		h(w, r)
	})
}

func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationIDKey, id)))
	})
}

// Fail makes the next times requests matching pattern (a route such as
// "POST /crm/v3/objects/{objectType}/batch/create") fail with status.
func (s *Server) Fail(pattern string, status, times int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[pattern] = &failure{status: status, message: message, times: times}
}

// Calls returns how many authenticated requests reached pattern.
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// AddObject stores an object and returns it.
func (s *Server) AddObject(objectType string, props map[string]string) *domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(objectType, props)
}

func (s *Server) insert(objectType string, props map[string]string) *domain.Object {
	s.nextID++
	id := strconv.Itoa(s.nextID)
	p := map[string]string{"hs_object_id": id}
	for k, v := range props {
		p[k] = v
	}
	obj := &domain.Object{ID: id, Properties: p, CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-01-01T00:00:00.000Z"}
	s.objects[objectType] = append(s.objects[objectType], obj)
	return obj
}

// Objects returns copies of the stored objects of a type in insertion order.
func (s *Server) Objects(objectType string) []domain.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Object, 0, len(s.objects[objectType]))
	for _, o := range s.objects[objectType] {
		out = append(out, *project(o, nil))
	}
	return out
}

// AddProperties registers string properties for an object type.
func (s *Server) AddProperties(objectType string, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.properties[objectType] = append(s.properties[objectType], domain.PropertyDescriptor{
			Name: n, Label: n, DataType: domain.DataTypeString, FieldType: domain.FieldTypeText,
		})
	}
}

// AddOwner registers an owner.
func (s *Server) AddOwner(o domain.Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = append(s.owners, o)
}

// AddPipeline registers a pipeline for deals or tickets.
func (s *Server) AddPipeline(objectType string, p domain.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[objectType] = append(s.pipelines[objectType], p)
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	props, ok := s.properties[r.PathValue("objectType")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, hubspot.CategoryObjectNotFound, "Unable to infer object type from: "+r.PathValue("objectType"), r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": props})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 10
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	offset, _ := strconv.Atoi(q.Get("after"))
	var props []string
	if v := q.Get("properties"); v != "" {
		props = strings.Split(v, ",")
	}

	s.mu.Lock()
	all := s.objects[r.PathValue("objectType")]
	page, next := paginate(all, offset, limit)
	results := make([]*domain.Object, 0, len(page))
	for _, o := range page {
		results = append(results, project(o, props))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, listResponse(results, next))
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	objectType := r.PathValue("objectType")
	var in domain.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Properties == nil {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Invalid input JSON", r)
		return
	}

	s.mu.Lock()
	if existing := s.collision(objectType, in.Properties); existing != nil {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, hubspot.CategoryConflict, "Contact already exists. Existing ID: "+existing.ID, r)
		return
	}
	obj := project(s.insert(objectType, in.Properties), nil)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	objectType := r.PathValue("objectType")
	var in domain.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Invalid input JSON", r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects[objectType] {
		if o.ID != r.PathValue("objectId") {
			continue
		}
		for k, v := range in.Properties {
			o.Properties[k] = v
		}
		o.UpdatedAt = "2024-01-02T00:00:00.000Z"
		writeJSON(w, http.StatusOK, project(o, nil))
		return
	}
	writeError(w, http.StatusNotFound, hubspot.CategoryObjectNotFound, "Object not found. objectId are usually numeric.", r)
}

func (s *Server) batchCreate(w http.ResponseWriter, r *http.Request) {
	objectType := r.PathValue("objectType")
	var body struct {
		Inputs []domain.CreateInput `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Invalid input JSON", r)
		return
	}
	if len(body.Inputs) > hubspot.MaxBatchSize {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Batch size exceeds maximum of 100", r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The whole batch is rejected when any input collides.
	for _, in := range body.Inputs {
		if existing := s.collision(objectType, in.Properties); existing != nil {
			writeError(w, http.StatusConflict, hubspot.CategoryConflict, "Contact already exists. Existing ID: "+existing.ID, r)
			return
		}
	}
	if name, v := s.duplicateInBatch(objectType, body.Inputs); name != "" {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Duplicate "+name+" values found in batch input: "+v, r)
		return
	}
	results := make([]*domain.Object, 0, len(body.Inputs))
	for _, in := range body.Inputs {
		results = append(results, project(s.insert(objectType, in.Properties), nil))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "COMPLETE", "results": results})
}

// collision returns the stored object that already holds one of the unique
// values in props.
func (s *Server) collision(objectType string, props map[string]string) *domain.Object {
	for _, name := range s.unique[objectType] {
		v := props[name]
		if v == "" {
			continue
		}
		for _, o := range s.objects[objectType] {
			if strings.EqualFold(o.Properties[name], v) {
				return o
			}
		}
	}
	return nil
}

// duplicateInBatch returns the first unique property, and its value, that
// more than one input of a batch shares.
func (s *Server) duplicateInBatch(objectType string, inputs []domain.CreateInput) (string, string) {
	for _, name := range s.unique[objectType] {
		seen := make(map[string]bool, len(inputs))
		for _, in := range inputs {
			v := strings.ToLower(in.Properties[name])
			if v == "" {
				continue
			}
			if seen[v] {
				return name, in.Properties[name]
			}
			seen[v] = true
		}
	}
	return "", ""
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Invalid input JSON", r)
		return
	}
	if len(req.FilterGroups) > 5 {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Too many filter groups", r)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	offset, _ := strconv.Atoi(req.After)

	s.mu.Lock()
	var matched []*domain.Object
	for _, o := range s.objects[r.PathValue("objectType")] {
		if matches(o, req.FilterGroups) {
			matched = append(matched, o)
		}
	}
	page, next := paginate(matched, offset, limit)
	results := make([]*domain.Object, 0, len(page))
	for _, o := range page {
		results = append(results, project(o, req.Properties))
	}
	s.mu.Unlock()

	out := domain.SearchResult{Total: len(matched), Results: results}
	if next != "" {
		out.Paging = &domain.Paging{Next: &domain.PagingNext{After: next}}
	}
	writeJSON(w, http.StatusOK, out)
}

func matches(o *domain.Object, groups []domain.FilterGroup) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		ok := true
		for _, f := range g.Filters {
			v, has := o.Properties[f.PropertyName]
			switch f.Operator {
			case domain.OperatorEQ:
				ok = ok && has && v == f.Value
			case domain.OperatorHasProperty:
				ok = ok && has && v != ""
			default:
				ok = false
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (s *Server) listOwners(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	offset, _ := strconv.Atoi(q.Get("after"))

	s.mu.Lock()
	end := min(offset+limit, len(s.owners))
	start := min(offset, end)
	page := append([]domain.Owner(nil), s.owners[start:end]...)
	next := ""
	if end < len(s.owners) {
		next = strconv.Itoa(end)
	}
	s.mu.Unlock()

	resp := map[string]any{"results": page}
	if next != "" {
		resp["paging"] = domain.Paging{Next: &domain.PagingNext{After: next}}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listPipelines(w http.ResponseWriter, r *http.Request) {
	objectType := r.PathValue("objectType")
	if objectType != domain.ObjectDeals && objectType != domain.ObjectTickets {
		writeError(w, http.StatusBadRequest, hubspot.CategoryValidationError, "Unsupported object type for pipelines: "+objectType, r)
		return
	}
	s.mu.Lock()
	pipelines := append([]domain.Pipeline{}, s.pipelines[objectType]...)
	s.mu.Unlock()
	sort.SliceStable(pipelines, func(i, j int) bool { return pipelines[i].DisplayOrder < pipelines[j].DisplayOrder })
	writeJSON(w, http.StatusOK, map[string]any{"results": pipelines})
}

func paginate(all []*domain.Object, offset, limit int) ([]*domain.Object, string) {
	end := min(offset+limit, len(all))
	start := min(offset, end)
	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return all[start:end], next
}

// project copies o keeping only the requested properties (all when props is
// empty).
func project(o *domain.Object, props []string) *domain.Object {
	out := *o
	out.Properties = map[string]string{}
	if len(props) == 0 {
		for k, v := range o.Properties {
			out.Properties[k] = v
		}
		return &out
	}
	out.Properties["hs_object_id"] = o.ID
	for _, p := range props {
		if v, ok := o.Properties[p]; ok {
			out.Properties[p] = v
		}
	}
	return &out
}

func listResponse(results []*domain.Object, next string) map[string]any {
	resp := map[string]any{"results": results}
	if next != "" {
		resp["paging"] = domain.Paging{Next: &domain.PagingNext{After: next}}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, category, message string, r *http.Request) {
	corrID, _ := r.Context().Value(correlationIDKey).(string)
	writeJSON(w, status, hubspot.APIError{
		Status:        "error",
		Message:       message,
		CorrelationID: corrID,
		Category:      category,
	})
}
