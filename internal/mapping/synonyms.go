package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// synonymSet normalizes the values of one select property. Lookups ignore
// case, surrounding space and accents. When fallback is set, unmatched values
// become fallback instead of passing through.
type synonymSet struct {
	values   map[string]string
	fallback string
}

var synonyms = map[string]synonymSet{
	"estado_del_asociado": {
		values: foldKeys(map[string]string{
			"activo": "true",
			"active": "true",
			"1":      "true",
			"true":   "true",
		}),
		fallback: "false",
	},
	"institucion_en_la_que_labora": {
		values: foldKeys(map[string]string{
			"banco nacional":               "BNCR",
			"banco nacional de costa rica": "BNCR",
			"bncr":                         "BNCR",
			"coopebanacio":                 "Coopebanacio",
			"fondo de garantía":            "Fondo de garantía",
			"subsidiarias":                 "Sudsidiarias",
		}),
	},
	"provincia": {
		values: foldKeys(map[string]string{
			"san josé":   "San José",
			"alajuela":   "Alajuela",
			"cartago":    "Cartago",
			"heredia":    "Heredia",
			"guanacaste": "Guanacaste",
			"puntarenas": "Puntarenas",
			"limón":      "Limón",
		}),
	},
}

// lookup returns the canonical value for raw and whether the set decided it.
func (s synonymSet) lookup(raw string) (string, bool) {
	if v, ok := s.values[fold(raw)]; ok {
		return v, true
	}
	if s.fallback != "" {
		return s.fallback, true
	}
	return "", false
}

// fold lowercases s, trims it and strips combining marks, so "San José",
// "san jose" and " SAN JOSE " compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func foldKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[fold(k)] = v
	}
	return out
}
