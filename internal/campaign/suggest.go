package campaign

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

const (
	suggestionPool = 200
	maxSuggestions = 3
	minWordLen     = 4
)

// Suggest ranks project titles by edit distance to query. A title scores the
// smaller of its whole distance and the distance of its closest word, so
// "watr" finds "Clean Water for Kenya". Words shorter than four letters are
// not compared on their own. Titles further away than a quarter of the query
// length plus one are dropped.
func Suggest(query string, projects []domain.Project, limit int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}
	threshold := len([]rune(q))/4 + 1

	type scored struct {
		title string
		dist  int
	}
	var candidates []scored
	seen := map[string]bool{}
	for _, p := range projects {
		title := strings.TrimSpace(p.Title)
		lower := strings.ToLower(title)
		if title == "" || seen[lower] {
			continue
		}
		seen[lower] = true

		best := levenshtein.ComputeDistance(q, lower)
		for _, word := range strings.Fields(lower) {
			if len([]rune(word)) < minWordLen {
				continue
			}
			if d := levenshtein.ComputeDistance(q, word); d < best {
				best = d
			}
		}
		if best <= threshold {
			candidates = append(candidates, scored{title: title, dist: best})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].title < candidates[j].title
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.title
	}
	return out
}
