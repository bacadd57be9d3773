// Package search ranks catalog objects against a free-text query.
package search

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// Match scores.
const (
	ScoreNamePrefix     = 100
	ScoreNameContains   = 50
	ScoreCommentPrefix  = 30
	ScoreCommentContain = 10
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 50

// Match is one ranked object.
type Match struct {
	catalog.Object
	Score int `json:"match_score"`
}

// Result is a page of matches.
type Result struct {
	Query   string  `json:"query"`
	Matches []Match `json:"results"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}

// Objects ranks objects against query. Names score a prefix hit above a
// substring hit, and the comment adds a smaller bonus the same way. Matching
// is case-folded. Results are sorted by score, then name. An empty query
// returns the first limit objects by name.
func Objects(objects []catalog.Object, query string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query = strings.TrimSpace(query)
	res := Result{Query: query, Matches: []Match{}}

	if query == "" {
		sorted := append([]catalog.Object(nil), objects...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		for i, o := range sorted {
			if i == limit {
				res.HasMore = true
				break
			}
			res.Matches = append(res.Matches, Match{Object: o})
		}
		res.Total = len(res.Matches)
		return res
	}

	fold := cases.Fold()
	q := fold.String(query)
	var matches []Match
	for _, o := range objects {
		if score := Score(fold.String(o.Name), fold.String(o.Comment), q); score > 0 {
			matches = append(matches, Match{Object: o, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})
	if len(matches) > limit {
		matches = matches[:limit]
		res.HasMore = true
	}
	res.Matches = append(res.Matches, matches...)
	res.Total = len(res.Matches)
	return res
}

// Score rates one object against an already folded query. Zero means no match.
func Score(name, comment, query string) int {
	score := 0
	switch {
	case strings.HasPrefix(name, query):
		score += ScoreNamePrefix
	case strings.Contains(name, query):
		score += ScoreNameContains
	}
	switch {
	case comment == "":
	case strings.HasPrefix(comment, query):
		score += ScoreCommentPrefix
	case strings.Contains(comment, query):
		score += ScoreCommentContain
	}
	return score
}
