package mapping

import (
	"fmt"
	"sort"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/domain"
)

// Rule maps one source column to one CRM property.
type Rule struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Kind   Kind   `yaml:"kind,omitempty"`
}

// Table is an ordered set of rules. Targets extends the built-in contact
// property catalog for portals with custom properties.
type Table struct {
	Name    string          `yaml:"name"`
	Targets map[string]Kind `yaml:"targets,omitempty"`
	Rules   []Rule          `yaml:"rules"`
}

// catalog lists the contact properties the sync writes and the coercion each
// one takes.
var catalog = withProducts(map[string]Kind{
	domain.ExternalKeyProperty: KindText,
	"numero_asociado":          KindNumber,
	"email":                    KindEmail,
	"work_email":               KindEmail,
	"firstname":                KindText,
	"lastname":                 KindText,
	"address":                  KindText,
	"city":                     KindText,
	"jobtitle":                 KindText,

	"hubspot_owner_id":             KindSelect,
	"estado_del_asociado":          KindSelect,
	"marital_status":               KindSelect,
	"provincia":                    KindSelect,
	"canton":                       KindSelect,
	"distrito":                     KindSelect,
	"institucion_en_la_que_labora": KindSelect,
	"departamento":                 KindSelect,

	"date_of_birth":            KindDate,
	"fecha_ingreso":            KindDate,
	"phone":                    KindPhone,
	"mobilephone":              KindPhone,
	"hs_whatsapp_phone_number": KindPhone,
	"telefono_habitacion":      KindPhone,
	"telefono_oficina":         KindPhone,

	"cantidad_hijos":                    KindNumber,
	"salario_bruto_semanal_o_quincenal": KindNumber,
	"salario_neto_semanal_o_quincenal":  KindNumber,
})

// productRules are the savings, credit and insurance flags shared by the
// insert and update tables.
var productRules = []Rule{
	{"con_ahorros", "con_ahorro", KindBoolean},
	{"tiene_economias", "con_ahorro_economias", KindBoolean},
	{"tiene_ahorro_navideno", "con_ahorro_navideno", KindBoolean},
	{"tiene_plan_fin_de_ano", "con_plan_fin_de_ano", KindBoolean},
	{"tiene_ahorro_fondo_de_inversion", "con_ahorro_fondo_de_inversion", KindBoolean},
	{"tiene_ahorro_plan_vacacional", "con_ahorro_plan_vacacional", KindBoolean},
	{"tiene_ahorro_plan_aguinaldo", "con_ahorro_plan_aguinaldo", KindBoolean},
	{"tiene_ahorro_plan_bono_escolar", "con_ahorro_plan_bono_escolar", KindBoolean},
	{"tiene_ahorro_con_proposito", "con_ahorro_con_proposito", KindBoolean},
	{"tiene_ahorro_plan_futuro", "con_ahorro_plan_futuro", KindBoolean},
	{"con_creditos", "con_credito", KindBoolean},
	{"sobre_capital_social", "con_cred__capital_social", KindBoolean},
	{"adelanto_de_pension", "con_cred__adelanto_de_pension", KindBoolean},
	{"consumo_personal", "con_cred__consumo_personal", KindBoolean},
	{"salud", "con_cred__salud", KindBoolean},
	{"especiales_al_vencimiento", "con_cred__especial_al_vencimiento", KindBoolean},
	{"facilito", "con_cred__facilito", KindBoolean},
	{"refundicion_de_pasivos", "con_cred__refundicion_de_pasivos", KindBoolean},
	{"vivienda_patrimonial", "con_cred_vivienda_patrimonial", KindBoolean},
	{"credito_capitalizable", "con_cred__capitalizable_3", KindBoolean},
	{"tecnologico", "con_cred__tecnologico", KindBoolean},
	{"credifacil", "con_credifacil", KindBoolean},
	{"vivienda_cooperativa", "con_cred__vivienda_cooperativa", KindBoolean},
	{"multiuso", "con_cred__multiuso", KindBoolean},
	{"deuda_unica", "con_cred__deuda_unica", KindBoolean},
	{"vivienda_constructivo", "con_cred__vivienda_constructivo", KindBoolean},
	{"credito_compra_vehiculos", "con_cred__vehiculo_nuevos", KindBoolean},
	{"con_back_to_back", "con_cred__back_to_back", KindBoolean},
	{"tiene_seguros", "con_seguro", KindBoolean},
	{"apoyo_funerario", "con_seg__apoyo_funerario", KindBoolean},
	{"seguro_su_vida", "con_seg__su_vida", KindBoolean},
	{"poliza_colectiva", "con_poliza_colectiva", KindBoolean},
	{"tiene_cesantia", "con_cesantia", KindBoolean},
}

func withProducts(m map[string]Kind) map[string]Kind {
	for _, r := range productRules {
		m[r.Target] = r.Kind
	}
	return m
}

// UpdateTable returns the rules used when patching existing contacts.
func UpdateTable() Table {
	rules := []Rule{
		{domain.ExternalKeyProperty, domain.ExternalKeyProperty, KindText},
		{"numero_asociado", "numero_asociado", KindNumber},
		{"email", "email", KindEmail},
		{"email_bncr", "work_email", KindEmail},
		{"estado_asociado", "estado_del_asociado", KindSelect},
	}
	rules = append(rules, productRules...)
	rules = append(rules, Rule{"encargado", "hubspot_owner_id", KindSelect})
	return Table{Name: "update", Rules: rules}
}

// InsertTable returns the rules used when creating contacts.
func InsertTable() Table {
	rules := []Rule{
		{domain.ExternalKeyProperty, domain.ExternalKeyProperty, KindText},
		{"numero_asociado", "numero_asociado", KindNumber},
		{"firstname", "firstname", KindText},
		{"lastname", "lastname", KindText},
		{"email", "email", KindEmail},
		{"email_bncr", "work_email", KindEmail},
		{"date_of_birth", "date_of_birth", KindDate},
		{"fecha_ingreso", "fecha_ingreso", KindDate},
		{"hs_whatsapp_phone_number", "hs_whatsapp_phone_number", KindPhone},
		{"telefono_habitacion", "telefono_habitacion", KindPhone},
		{"telefono_oficina", "telefono_oficina", KindPhone},
		{"estado_asociado", "estado_del_asociado", KindSelect},
		{"marital_status", "marital_status", KindSelect},
		{"provincia", "provincia", KindSelect},
		{"canton", "canton", KindSelect},
		{"distrito", "distrito", KindSelect},
		{"institucion", "institucion_en_la_que_labora", KindSelect},
		{"departamento", "departamento", KindSelect},
		{"cantidad_hijos", "cantidad_hijos", KindNumber},
		{"salario_bruto_semanal_o_quincenal", "salario_bruto_semanal_o_quincenal", KindNumber},
		{"salario_neto_semanal_o_quincenal", "salario_neto_semanal_o_quincenal", KindNumber},
		{"address", "address", KindText},
		{"city", "city", KindText},
	}
	rules = append(rules, productRules...)
	rules = append(rules, Rule{"encargado", "hubspot_owner_id", KindSelect})
	return Table{Name: "insert", Rules: rules}
}

// MinimalInsertTable is used when a configured mapping file cannot be read.
func MinimalInsertTable() Table {
	return Table{Name: "insert-minimal", Rules: []Rule{
		{domain.ExternalKeyProperty, domain.ExternalKeyProperty, KindText},
		{"numero_asociado", "numero_asociado", KindNumber},
		{"email", "email", KindEmail},
		{"firstname", "firstname", KindText},
		{"lastname", "lastname", KindText},
	}}
}

// kindFor returns the catalog kind of target, consulting the table's own
// targets first.
func (t Table) kindFor(target string) (Kind, bool) {
	if k, ok := t.Targets[target]; ok {
		return k, true
	}
	k, ok := catalog[target]
	return k, ok
}

// Resolve fills in omitted rule kinds from the catalog.
func (t Table) Resolve() Table {
	out := t
	out.Rules = make([]Rule, len(t.Rules))
	for i, r := range t.Rules {
		if r.Kind == KindUnknown {
			if k, ok := t.kindFor(r.Target); ok {
				r.Kind = k
			}
		}
		out.Rules[i] = r
	}
	return out
}

// Validate checks every rule: a source column, a known target, a defined kind
// agreeing with the catalog, and no column or target mapped twice. The table
// must also map the external key.
func (t Table) Validate() error {
	var problems []string
	sources := map[string]bool{}
	targets := map[string]bool{}
	hasKey := false

	for i, r := range t.Rules {
		where := fmt.Sprintf("rule %d (%s -> %s)", i+1, r.Source, r.Target)
		if r.Source == "" || r.Target == "" {
			problems = append(problems, where+": source and target are required")
			continue
		}
		known, ok := t.kindFor(r.Target)
		switch {
		case !ok:
			problems = append(problems, where+": unknown target property")
		case !r.Kind.Valid():
			problems = append(problems, where+": missing or invalid kind")
		case known != r.Kind:
			problems = append(problems, fmt.Sprintf("%s: kind %s does not match property kind %s", where, r.Kind, known))
		}
		if sources[r.Source] {
			problems = append(problems, where+": source column mapped twice")
		}
		if targets[r.Target] {
			problems = append(problems, where+": target property mapped twice")
		}
		sources[r.Source] = true
		targets[r.Target] = true
		if r.Target == domain.ExternalKeyProperty {
			hasKey = true
		}
	}
	if !hasKey {
		problems = append(problems, "table does not map "+domain.ExternalKeyProperty)
	}
	names := make([]string, 0, len(t.Targets))
	for name := range t.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !t.Targets[name].Valid() {
			problems = append(problems, fmt.Sprintf("target %s: invalid kind", name))
		}
	}

	if len(problems) > 0 {
		return &apperr.ConfigurationError{Problems: prefix(t.Name, problems)}
	}
	return nil
}

// TargetNames returns the target property names in rule order.
func (t Table) TargetNames() []string {
	out := make([]string, 0, len(t.Rules))
	for _, r := range t.Rules {
		out = append(out, r.Target)
	}
	return out
}

// Missing returns the targets that are absent from the CRM's property list.
func (t Table) Missing(descs []domain.PropertyDescriptor) []string {
	have := make(map[string]bool, len(descs))
	for _, d := range descs {
		have[d.Name] = true
	}
	var out []string
	for _, r := range t.Rules {
		if !have[r.Target] {
			out = append(out, r.Target)
		}
	}
	return out
}

func prefix(name string, problems []string) []string {
	if name == "" {
		return problems
	}
	out := make([]string, len(problems))
	for i, p := range problems {
		out[i] = name + " mapping: " + p
	}
	return out
}
