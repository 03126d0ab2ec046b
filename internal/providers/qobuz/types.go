package qobuz

type searchResponse struct {
	Tracks struct {
		Items []track `json:"items"`
		Total int     `json:"total"`
	} `json:"tracks"`
}

type track struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Version         string     `json:"version"`
	Duration        int        `json:"duration"`
	TrackNumber     int        `json:"track_number"`
	MediaNumber     int        `json:"media_number"`
	ISRC            string     `json:"isrc"`
	ParentalWarning bool       `json:"parental_warning"`
	Streamable      bool       `json:"streamable"`
	Performer       *performer `json:"performer"`
	Album           *album     `json:"album"`
}

// artists falls back to the album artist when the track has no performer.
func (t track) artists() []string {
	if t.Performer != nil && t.Performer.Name != "" {
		return []string{t.Performer.Name}
	}
	if t.Album != nil && t.Album.Artist != nil && t.Album.Artist.Name != "" {
		return []string{t.Album.Artist.Name}
	}
	return nil
}

type performer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type album struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ReleaseDate string     `json:"release_date_original"`
	UPC         string     `json:"upc"`
	Artist      *performer `json:"artist"`
	Genre       *struct {
		Name string `json:"name"`
	} `json:"genre"`
}

type fileURL struct {
	TrackID  int64  `json:"track_id"`
	URL      string `json:"url"`
	FormatID int    `json:"format_id"`
	MimeType string `json:"mime_type"`
	Sample   bool   `json:"sample"`
}
