package httpchars

// Tchar marks characters allowed in an HTTP token (RFC 9110, 5.6.2). Header
// field names consisting of anything else are malformed, which matters beyond
// pedantry: letting exotic bytes into field names is a known smuggling vector.
var Tchar = [256]bool{}

func init() {
	for c := '0'; c <= '9'; c++ {
		Tchar[c] = true
	}

	for c := 'a'; c <= 'z'; c++ {
		Tchar[c] = true
	}

	for c := 'A'; c <= 'Z'; c++ {
		Tchar[c] = true
	}

	for _, c := range "!#$%&'*+-.^_`|~" {
		Tchar[c] = true
	}
}

// IsToken reports whether str is a non-empty valid HTTP token.
func IsToken(str string) bool {
	if len(str) == 0 {
		return false
	}

	for i := 0; i < len(str); i++ {
		if !Tchar[str[i]] {
			return false
		}
	}

	return true
}
