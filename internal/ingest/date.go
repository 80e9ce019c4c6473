package ingest

import "strings"

// formatPGNDate converts a PGN date header to an ISO-8601 prefix that
// compares lexicographically: "2024.03.15" -> "2024-03-15",
// "2024.03.??" -> "2024-03", "2024.??.??" -> "2024". Unknown or malformed
// dates map to the empty string.
func formatPGNDate(raw string) string {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ""
	}
	year, month, day := parts[0], parts[1], parts[2]

	if !allDigits(year) || len(year) != 4 {
		return ""
	}
	if month == "??" {
		return year
	}
	if !allDigits(month) || len(month) != 2 {
		return ""
	}
	if day == "??" {
		return year + "-" + month
	}
	if !allDigits(day) || len(day) != 2 {
		return ""
	}
	return year + "-" + month + "-" + day
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
