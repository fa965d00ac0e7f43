package providers

import (
	"regexp"
	"strings"

	"github.com/aristath/allocator/internal/domain"
)

var nonWord = regexp.MustCompile(`\W+`)

// HeadlineKey normalizes a title for duplicate detection: every run of
// non-word characters is removed and the rest lower-cased.
func HeadlineKey(title string) string {
	return strings.ToLower(nonWord.ReplaceAllString(title, ""))
}

// DedupHeadlines drops headlines whose key was already seen, keeping the
// first occurrence, then truncates to limit (limit <= 0 means no limit).
func DedupHeadlines(headlines []domain.Headline, limit int) []domain.Headline {
	seen := make(map[string]struct{}, len(headlines))
	out := make([]domain.Headline, 0, len(headlines))

	for _, h := range headlines {
		key := HeadlineKey(h.Title)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
