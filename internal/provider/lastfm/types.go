package lastfm

type imageEntry struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

type artistSearchResponse struct {
	Results struct {
		ArtistMatches struct {
			Artist []artistMatch `json:"artist"`
		} `json:"artistmatches"`
	} `json:"results"`
}

type artistMatch struct {
	Name  string       `json:"name"`
	MBID  string       `json:"mbid"`
	Image []imageEntry `json:"image"`
}

type albumInfoResponse struct {
	Album struct {
		Name   string       `json:"name"`
		Artist string       `json:"artist"`
		Image  []imageEntry `json:"image"`
	} `json:"album"`
}
