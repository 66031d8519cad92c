package logging

import (
	"regexp"
	"strings"
)

// KeyVisible is how many trailing characters of an identifying value may
// appear in logs and error messages.
const KeyVisible = 2

// Mask replaces all but the last visible characters of s with '*'. Values
// not longer than visible are fully masked; the empty string becomes "****".
func Mask(s string, visible int) string {
	if s == "" {
		return "****"
	}
	r := []rune(s)
	if len(r) <= visible {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-visible) + string(r[len(r)-visible:])
}

// MaskKey masks an external key with the standard visibility.
func MaskKey(s string) string {
	return Mask(s, KeyVisible)
}

var (
	dsnKV       = regexp.MustCompile(`(?i)\b(pwd|password|uid|user id|user)=([^;&]*)`)
	dsnUserinfo = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*://)?([^:@/]+):([^@/]*)@`)
)

// MaskDSN hides credentials in connection strings, both key=value style
// (PWD=...;UID=...) and user:password@ style.
func MaskDSN(dsn string) string {
	out := dsnKV.ReplaceAllString(dsn, "$1=***")
	return dsnUserinfo.ReplaceAllString(out, "$1***:***@")
}
