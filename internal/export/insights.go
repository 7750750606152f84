package export

import (
	"fmt"
	"sort"

	"promowatch/internal/model"
)

// Insights summarizes stats and the latest comparison in a few sentences.
// Ties are broken by name so the output is stable.
func Insights(stats *model.Stats, newCount, removedCount int) []string {
	var out []string

	if stats != nil {
		if names := rank(stats.ByCompetitor); len(names) > 0 {
			top := names[0]
			out = append(out, fmt.Sprintf("%s has the most promotions (%d)", top, stats.ByCompetitor[top]))
			if len(names) > 1 {
				last := names[len(names)-1]
				out = append(out, fmt.Sprintf("%s has the fewest promotions (%d)", last, stats.ByCompetitor[last]))
			}
		}
		if types := rank(stats.ByType); len(types) > 0 {
			top := types[0]
			out = append(out, fmt.Sprintf("Most common bonus type: %s (%d promotions)", top, stats.ByType[top]))
		}
	}

	if newCount > 0 {
		out = append(out, fmt.Sprintf("%d new promotions detected in this analysis", newCount))
	} else {
		out = append(out, "No new promotions detected since last analysis")
	}
	if removedCount > 0 {
		out = append(out, fmt.Sprintf("%d promotions were removed or expired", removedCount))
	}
	return out
}

// rank returns the keys of counts ordered by count descending, then name.
func rank(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
