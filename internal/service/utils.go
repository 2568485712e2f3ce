package service

import "strings"

// sanitizeText drops invalid UTF-8 and NUL bytes, both of which Postgres
// rejects in text columns. Plaid names and model output can carry either.
func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return s
}
