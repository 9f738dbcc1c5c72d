package strutil

import "strings"

// CmpFold compares two strings ASCII-case-insensitively.
func CmpFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if toLower(a[i]) != toLower(b[i]) {
			return false
		}
	}

	return true
}

// CmpFoldFast is a faster version of CmpFold, which however gives correct results
// only if at least one of the strings consists of letters, digits and dashes only.
// Header field names compared against known constants always qualify.
func CmpFoldFast(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i]|0x20 != b[i]|0x20 {
			return false
		}
	}

	return true
}

// HasToken reports whether a comma-separated header value contains the token,
// compared case-insensitively with surrounding whitespace ignored.
func HasToken(list, token string) bool {
	for len(list) > 0 {
		var element string

		comma := strings.IndexByte(list, ',')
		if comma == -1 {
			element, list = list, ""
		} else {
			element, list = list[:comma], list[comma+1:]
		}

		if CmpFold(TrimWS(element), token) {
			return true
		}
	}

	return false
}

// LastToken returns the last token of a comma-separated header value.
func LastToken(list string) string {
	if comma := strings.LastIndexByte(list, ','); comma != -1 {
		list = list[comma+1:]
	}

	return TrimWS(list)
}

func TrimWS(str string) string {
	return RStripWS(LStripWS(str))
}

func LStripWS(str string) string {
	for i := 0; i < len(str); i++ {
		switch str[i] {
		case ' ', '\t':
		default:
			return str[i:]
		}
	}

	return ""
}

func RStripWS(str string) string {
	for i := len(str); i > 0; i-- {
		switch str[i-1] {
		case ' ', '\t':
		default:
			return str[:i]
		}
	}

	return ""
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c | 0x20
	}

	return c
}
