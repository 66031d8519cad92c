package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTextLength is the longest free-text value written to the CRM, in runes.
const MaxTextLength = 1000

// DefaultCountryCode is prefixed to 8-digit local phone numbers.
const DefaultCountryCode = "+506"

// dateLayouts are tried in order; the first that parses wins. Day-first comes
// before month-first, so "03/04/2020" is 3 April.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2006/1/2",
}

var truthy = map[string]bool{
	"1": true, "true": true, "yes": true, "si": true, "sí": true,
	"y": true, "s": true, "activo": true, "active": true,
}

var (
	nonNumeric = regexp.MustCompile(`[^0-9.\-]`)
	nonPhone   = regexp.MustCompile(`[^0-9+]`)
	emailShape = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var errTruncated = errors.New("truncated")

// stringify renders a raw source value. ok is false for nil.
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Time:
		return x.Format(time.DateOnly), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// coerceBoolean never fails: anything outside the truthy set is "false".
func coerceBoolean(raw string) string {
	if truthy[strings.ToLower(strings.TrimSpace(raw))] {
		return "true"
	}
	return "false"
}

func coerceNumber(raw string) (string, error) {
	clean := nonNumeric.ReplaceAllString(strings.TrimSpace(raw), "")
	if clean == "" {
		return "", fmt.Errorf("no digits in %q", raw)
	}
	if strings.Contains(clean, ".") {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return "", fmt.Errorf("not a number: %q", raw)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	// Integers never pass through float64; anything outside int64 is dropped.
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return "", fmt.Errorf("not an integer in range: %q", raw)
	}
	return strconv.FormatInt(n, 10), nil
}

func coerceDate(v any) (string, error) {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.DateOnly), nil
	}
	raw, _ := stringify(v)
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.DateOnly), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", raw)
}

func coercePhone(raw, countryCode string) (string, error) {
	phone := nonPhone.ReplaceAllString(strings.TrimSpace(raw), "")
	if !strings.HasPrefix(phone, "+") {
		cc := strings.TrimPrefix(countryCode, "+")
		switch {
		case len(phone) == 8:
			phone = countryCode + phone
		case len(phone) == 8+len(cc) && strings.HasPrefix(phone, cc):
			phone = "+" + phone
		}
	}
	if len(phone) < 10 {
		return "", fmt.Errorf("phone number too short (%d characters)", len(phone))
	}
	return phone, nil
}

func coerceEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailShape.MatchString(email) {
		return "", errors.New("invalid email format")
	}
	return email, nil
}

func coerceSelect(target, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if set, ok := synonyms[target]; ok {
		if v, ok := set.lookup(trimmed); ok {
			return v
		}
	}
	return trimmed
}

// coerceText trims and cuts to MaxTextLength runes; the error reports a cut.
func coerceText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text, nil
	}
	return string([]rune(text)[:MaxTextLength]), errTruncated
}
