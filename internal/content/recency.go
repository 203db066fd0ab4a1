package content

import (
	"sort"
	"strings"
)

// recencyBuckets are checked in order; the first marker found in a topic's
// LastAccessed text decides its rank. Anything unmatched ranks last.
var recencyBuckets = [][]string{
	{"just now"},
	{"sec"},
	{"min"},
	{"hour", "h ago"},
	{"day", "d ago"},
	{"week", "w ago"},
}

// recencyRank maps a free-text recency marker such as "5 min ago" to a
// bucket. It is a heuristic over display strings, not a time comparison.
func recencyRank(lastAccessed string) int {
	s := strings.ToLower(lastAccessed)
	for rank, markers := range recencyBuckets {
		for _, m := range markers {
			if strings.Contains(s, m) {
				return rank
			}
		}
	}
	return len(recencyBuckets)
}

// sortByRecency orders topics by bucket, keeping input order within a bucket.
func sortByRecency(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		return recencyRank(topics[i].LastAccessed) < recencyRank(topics[j].LastAccessed)
	})
}
