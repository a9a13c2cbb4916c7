package restyle

import "strings"

// Determine reports whether hostname is admitted by allowList. An empty or nil
// list admits nothing. Otherwise any entry that is a substring of hostname
// admits the host.
//
// The match is not anchored: "example.com" also admits "notexample.com" and
// an empty entry admits every host.
func Determine(hostname string, allowList []string) bool {
	_, ok := MatchingEntry(hostname, allowList)
	return ok
}

// MatchingEntry returns the first allow-list entry that admits hostname.
func MatchingEntry(hostname string, allowList []string) (string, bool) {
	for _, domain := range allowList {
		if strings.Contains(hostname, domain) {
			return domain, true
		}
	}
	return "", false
}
