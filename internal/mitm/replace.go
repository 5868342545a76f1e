package mitm

import (
	"regexp"
	"strings"
)

// bogusAddress matches a Boguscoin address: a word starting with '7'
// followed by 25-34 alphanumeric characters.
var bogusAddress = regexp.MustCompile(`^7[a-zA-Z0-9]{25,34}$`)

// TonyAddress is substituted for every Boguscoin address seen in
// either direction.
const TonyAddress = "7YWHMfk9JZe0LM0g1ZauHuiSxhI"

// Replace rewrites every space-separated word in s that looks like a
// Boguscoin address to TonyAddress.
func Replace(s string) string {
	words := strings.Split(s, " ")
	for i, word := range words {
		if bogusAddress.MatchString(word) {
			words[i] = TonyAddress
		}
	}
	return strings.Join(words, " ")
}
