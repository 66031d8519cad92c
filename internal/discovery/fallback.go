package discovery

import "github.com/johnwards/hubsync/internal/domain"

var fallbackProperties = map[string][]string{
	domain.ObjectDeals: {
		"hs_object_id", "dealname", "amount", "dealstage", "pipeline",
		"closedate", "createdate", "hubspot_owner_id", "dealtype",
	},
	domain.ObjectContacts: {
		"hs_object_id", "email", "firstname", "lastname", "phone", "company",
		"createdate", "lastmodifieddate", "hubspot_owner_id",
	},
	domain.ObjectTickets: {
		"hs_object_id", "subject", "content", "hs_ticket_category", "hs_pipeline",
		"hs_pipeline_stage", "hs_ticket_priority", "hubspot_owner_id", "createdate",
		"closed_date", "hs_lastmodifieddate", "source_type", "time_to_close",
		"time_to_first_agent_reply", "first_agent_reply_date",
	},
}

// Fallback returns the minimal property set used when discovery cannot run.
// Unknown object types get only the identity property.
func Fallback(objectType string) []string {
	props, ok := fallbackProperties[objectType]
	if !ok {
		return []string{IdentityProperty}
	}
	return append([]string(nil), props...)
}
