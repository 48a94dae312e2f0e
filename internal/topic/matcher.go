// Package topic implements hierarchical topic filtering. Topics are
// slash-separated strings like "security/sql-injection"; a filter matches a
// topic when it equals it or is a segment-boundary prefix of it.
package topic

import "strings"

// Matches reports whether topic is covered by filter. "security" covers
// "security" and "security/sql-injection" but not "securityX".
func Matches(filter, topic string) bool {
	if topic == filter {
		return true
	}
	return strings.HasPrefix(topic, filter+"/")
}

// MatchesAny reports whether any topic on a record satisfies any filter.
// An empty filter set matches everything (including untagged records).
func MatchesAny(filters, topics []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		for _, t := range topics {
			if Matches(f, t) {
				return true
			}
		}
	}
	return false
}
