package model

import "strings"

// MatchTags reports whether any of the filter tags matches any of the
// record's tags, compared case-insensitively. An empty filter matches
// everything.
func MatchTags(recordTags, filterTags []string) bool {
	if len(filterTags) == 0 {
		return true
	}
	for _, f := range filterTags {
		for _, t := range recordTags {
			if strings.EqualFold(t, f) {
				return true
			}
		}
	}
	return false
}
