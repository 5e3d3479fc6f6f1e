package utils

import "strings"

// MaskPhoneNumber masks a phone number for logging, keeping the first two
// and last two digits.
func MaskPhoneNumber(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
