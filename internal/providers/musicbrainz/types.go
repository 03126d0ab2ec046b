package musicbrainz

// recordingList is returned by recording searches and ISRC lookups.
type recordingList struct {
	Recordings []recording `json:"recordings"`
	Count      int         `json:"count"`
}

type recording struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Length           int            `json:"length,omitempty"` // milliseconds
	Score            int            `json:"score,omitempty"`  // 0-100, search only
	FirstReleaseDate string         `json:"first-release-date,omitempty"`
	ArtistCredit     []artistCredit `json:"artist-credit,omitempty"`
	ISRCs            []string       `json:"isrcs,omitempty"`
	Releases         []release      `json:"releases,omitempty"`
	Genres           []genre        `json:"genres,omitempty"`
}

type release struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Date         string         `json:"date,omitempty"`
	Barcode      string         `json:"barcode,omitempty"`
	Status       string         `json:"status,omitempty"`
	ArtistCredit []artistCredit `json:"artist-credit,omitempty"`
	Media        []medium       `json:"media,omitempty"`
}

type medium struct {
	Position int     `json:"position"`
	Format   string  `json:"format,omitempty"`
	Tracks   []track `json:"tracks,omitempty"`
}

type track struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Position  int        `json:"position"`
	Length    int        `json:"length,omitempty"`
	Recording *recording `json:"recording,omitempty"`
}

type artistCredit struct {
	Name   string `json:"name"`
	Artist artist `json:"artist"`
}

type artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type genre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func creditNames(credits []artistCredit) []string {
	if len(credits) == 0 {
		return nil
	}
	names := make([]string, 0, len(credits))
	for _, c := range credits {
		name := c.Name
		if name == "" {
			name = c.Artist.Name
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// topGenre returns the most-voted genre, or "" when none were tagged.
func topGenre(genres []genre) string {
	best := ""
	count := 0
	for _, g := range genres {
		if g.Count > count {
			best, count = g.Name, g.Count
		}
	}
	return best
}
