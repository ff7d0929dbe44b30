package mailer

import "strings"

// ValidateAddress reports whether candidate is a structurally plausible
// email address. The check is purely syntactic - no DNS or mailbox lookup
// is performed, so a true result means "worth handing to the relay", not
// "deliverable".
func ValidateAddress(candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, " \t\r\n") {
		return false
	}
	if strings.Contains(candidate, "..") {
		return false
	}
	if strings.HasPrefix(candidate, ".") || strings.HasSuffix(candidate, ".") {
		return false
	}
	if strings.HasPrefix(candidate, "@") || strings.Contains(candidate, "@@") {
		return false
	}
	if strings.Count(candidate, "@") != 1 {
		return false
	}

	local, domain, _ := strings.Cut(candidate, "@")
	if local == "" {
		return false
	}
	if len(domain) < 3 || !strings.Contains(domain, ".") {
		return false
	}

	// The top-level label needs at least two characters.
	tld := domain[strings.LastIndex(domain, ".")+1:]
	return len(tld) >= 2
}
