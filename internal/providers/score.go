package providers

import (
	"sort"
	"strings"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// durationTolerance is the difference in seconds under which durations count as equal.
const durationTolerance = 3

// Score rates how well a search hit matches the query, from 0 to 1.
//
// A matching ISRC is a perfect score. Otherwise the normalized "title|artist" keys are compared by
// edit distance, and a duration off by more than a few seconds costs a tenth of the score.
func Score(q models.Query, title string, artists []string, isrc string, duration int) float64 {
	if q.ISRC != "" && strings.EqualFold(q.ISRC, isrc) {
		return 1
	}

	artist := ""
	if len(artists) > 0 {
		artist = artists[0]
	}
	var s float64
	if q.Artist == "" {
		s = shared.Similarity(q.Title, title)
	} else {
		s = shared.Similarity(shared.NormalizeTrackKey(q.Title, q.Artist), shared.NormalizeTrackKey(title, artist))
	}

	if q.Duration > 0 && duration > 0 {
		d := q.Duration - duration
		if d < 0 {
			d = -d
		}
		if d > durationTolerance {
			s *= 0.9
		}
	}
	return s
}

// RankCandidates sorts candidates best first, keeping the service's order among equal scores.
func RankCandidates(c []models.Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Score > c[j].Score })
}
