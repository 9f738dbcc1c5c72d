package hexconv

// Halfbyte maps an ASCII character to its hexadecimal value. Invalid characters
// are mapped to 0xFF, which the caller must treat as a parse failure.
var Halfbyte = [256]byte{}

func init() {
	for i := range Halfbyte {
		Halfbyte[i] = 0xFF
	}

	for c := '0'; c <= '9'; c++ {
		Halfbyte[c] = byte(c - '0')
	}

	for c := 'a'; c <= 'f'; c++ {
		Halfbyte[c] = byte(c-'a') + 0xA
	}

	for c := 'A'; c <= 'F'; c++ {
		Halfbyte[c] = byte(c-'A') + 0xA
	}
}
