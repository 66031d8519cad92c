package mirror_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/hubsync/internal/discovery"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/hubspot/hubspottest"
	"github.com/johnwards/hubsync/internal/mirror"
	"github.com/johnwards/hubsync/internal/tablesync"
	"github.com/johnwards/hubsync/internal/testhelpers"
)

const (
	listRoute   = "GET /crm/v3/objects/{objectType}"
	ownersRoute = "GET /crm/v3/owners/"
)

func seed(srv *hubspottest.Server) {
	srv.AddProperties("deals", "hs_object_id", "dealname", "amount", "never_used")
	srv.AddObject("deals", map[string]string{"dealname": "Renewal", "amount": "1200.50"})
	srv.AddObject("deals", map[string]string{"dealname": "Upsell"})

	srv.AddProperties("tickets", "hs_object_id", "subject", "time_to_close")
	srv.AddObject("tickets", map[string]string{"subject": "Card blocked", "time_to_close": "7200000"})

	// contacts have no property metadata, so discovery falls back
	srv.AddObject("contacts", map[string]string{"email": "ana@example.com", "firstname": "Ana"})

	srv.AddOwner(domain.Owner{ID: "11", FirstName: "Ana", LastName: "Mora", Email: "ana@example.com", UserID: 7})
	srv.AddOwner(domain.Owner{ID: "12", Email: "bot@example.com"})

	srv.AddPipeline("deals", domain.Pipeline{ID: "default", Label: "Sales", Stages: []domain.PipelineStage{
		{ID: "appointmentscheduled", Label: "Appointment", DisplayOrder: 0, Metadata: map[string]string{"probability": "0.2"}},
		{ID: "closedwon", Label: "Won", DisplayOrder: 1, Metadata: map[string]string{"probability": "1.0"}},
	}})
	srv.AddPipeline("tickets", domain.Pipeline{ID: "0", Label: "Support"})
}

func queryString(t *testing.T, db *sql.DB, query string) string {
	t.Helper()
	var v sql.NullString
	require.NoError(t, db.QueryRowContext(context.Background(), query).Scan(&v))
	return v.String
}

func TestRunMirrorsEveryTable(t *testing.T) {
	srv := hubspottest.New(t)
	seed(srv)
	db := testhelpers.NewTestDB(t)
	client := srv.NewClient()

	m := mirror.New(client, discovery.New(client, 0, 0.01), tablesync.New(db), nil)
	outcomes, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 6)

	steps := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		steps = append(steps, o.Step)
	}
	assert.Equal(t, []string{"deals", "tickets", "contacts", "owners", "ticket_pipelines", "deal_pipelines"}, steps)

	assert.Equal(t, "2", queryString(t, db.DB, `SELECT COUNT(*) FROM hb_deals`))
	assert.Equal(t, "1200.50", queryString(t, db.DB, `SELECT amount FROM hb_deals WHERE dealname = 'Renewal'`))
	assert.Equal(t, "7200", queryString(t, db.DB, `SELECT time_to_close FROM hb_tickets`))
	assert.Equal(t, "ana@example.com", queryString(t, db.DB, `SELECT email FROM hb_contacts`))
	assert.Equal(t, "Sin nombre", queryString(t, db.DB, `SELECT fullName FROM hb_owners WHERE id = '12'`))
	assert.Equal(t, "Ana Mora", queryString(t, db.DB, `SELECT fullName FROM hb_owners WHERE id = '11'`))
	assert.Equal(t, "0.2", queryString(t, db.DB, `SELECT stage_probability FROM hb_deals_pipeline WHERE stage_id = 'appointmentscheduled'`))
	assert.Equal(t, "Sin stages", queryString(t, db.DB, `SELECT stage_label FROM hb_tickets_pipeline`))

	_, err = db.ExecContext(context.Background(), `SELECT never_used FROM hb_deals`)
	assert.Error(t, err, "properties without data are not mirrored")
}

type recordingSink struct {
	tables []string
}

func (s *recordingSink) Sync(_ context.Context, rows []domain.Row, table string) (tablesync.Result, error) {
	s.tables = append(s.tables, table)
	return tablesync.Result{Table: table, Rows: len(rows)}, nil
}

func TestRunContinuesAfterAFailedTable(t *testing.T) {
	srv := hubspottest.New(t)
	seed(srv)
	srv.Fail(ownersRoute, http.StatusInternalServerError, 1, "internal error")
	client := srv.NewClient()
	sink := &recordingSink{}

	outcomes, err := mirror.New(client, discovery.New(client, 0, 0.01), sink, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owners")
	require.Len(t, outcomes, 6)
	assert.Error(t, outcomes[3].Err)
	assert.Equal(t, []string{
		tablesync.TableDeals, tablesync.TableTickets, tablesync.TableContacts,
		tablesync.TableTicketsPipeline, tablesync.TableDealsPipeline,
	}, sink.tables)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	srv := hubspottest.New(t)
	client := srv.NewClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := mirror.New(client, discovery.New(client, 0, 0.01), &recordingSink{}, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}

func TestFetchAllMergesPropertyGroups(t *testing.T) {
	srv := hubspottest.New(t)
	props := []string{"hs_object_id"}
	values := map[string]string{}
	for i := 1; i < 170; i++ {
		name := fmt.Sprintf("prop_%03d", i)
		props = append(props, name)
		values[name] = fmt.Sprint(i)
	}
	first := srv.AddObject("contacts", values)
	second := srv.AddObject("contacts", values)

	objs, err := mirror.FetchAll(context.Background(), srv.NewClient(), "contacts", props)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, first.ID, objs[0].ID)
	assert.Equal(t, second.ID, objs[1].ID)
	assert.Len(t, objs[0].Properties, 170)
	assert.Equal(t, "169", objs[1].Properties["prop_169"])
	assert.Equal(t, 3, srv.Calls(listRoute))
}

func TestFetchAllFollowsPages(t *testing.T) {
	srv := hubspottest.New(t)
	for i := 0; i < mirror.PageSize+5; i++ {
		srv.AddObject("deals", map[string]string{"dealname": fmt.Sprint("deal ", i)})
	}

	objs, err := mirror.FetchAll(context.Background(), srv.NewClient(), "deals", []string{"dealname"})
	require.NoError(t, err)
	assert.Len(t, objs, mirror.PageSize+5)
	assert.Equal(t, 2, srv.Calls(listRoute))
}

func TestEntityRows(t *testing.T) {
	objs := []*domain.Object{{ID: "1", Properties: map[string]string{
		"subject":         "",
		"time_to_close":   "1700000000123",
		"hs_time_in_open": "12a",
		"createdate":      "2024-01-01T00:00:00Z",
	}}}

	rows := mirror.EntityRows(domain.ObjectTickets, objs)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["subject"])
	assert.InDelta(t, 1700000000.123, rows[0]["time_to_close"], 0.0001)
	assert.Equal(t, "12a", rows[0]["hs_time_in_open"])
	assert.Equal(t, "2024-01-01T00:00:00Z", rows[0]["createdate"])

	rows = mirror.EntityRows(domain.ObjectDeals, objs)
	assert.Equal(t, "1700000000123", rows[0]["time_to_close"])
}

func TestPipelineRows(t *testing.T) {
	rows := mirror.PipelineRows([]domain.Pipeline{
		{ID: "p1", Label: "Sales", DisplayOrder: 1, Stages: []domain.PipelineStage{
			{ID: "s1", Label: "New", Metadata: map[string]string{"probability": "0.4"}},
			{ID: "s2", Label: "Odd", Metadata: map[string]string{"probability": "n/a"}},
			{ID: "s3", Label: "Bare"},
		}},
		{ID: "p2", Label: "Empty"},
	})
	require.Len(t, rows, 4)
	assert.Equal(t, 0.4, rows[0]["stage_probability"])
	assert.Equal(t, 0.0, rows[1]["stage_probability"])
	assert.Equal(t, 0.0, rows[2]["stage_probability"])
	assert.Equal(t, "p1", rows[2]["pipeline_id"])
	assert.Equal(t, mirror.NoStagesLabel, rows[3]["stage_label"])
	assert.Nil(t, rows[3]["stage_id"])
	assert.Equal(t, "Empty", rows[3]["pipeline_label"])
}

func TestOwnerRows(t *testing.T) {
	rows := mirror.OwnerRows([]domain.Owner{
		{ID: "1", FirstName: "Ana", LastName: ""},
		{ID: "2", Archived: true},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana", rows[0]["fullName"])
	assert.Equal(t, true, rows[0]["active"])
	assert.Equal(t, mirror.UnnamedOwner, rows[1]["fullName"])
	assert.Equal(t, false, rows[1]["active"])
}
