package session

import "strings"

// sanitizePhone keeps digits and a leading plus, the shape stored with the
// call record.
func sanitizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// maskPhone hides all but the last four digits for logs.
func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
