package musicbrainz

type artistSearchResponse struct {
	Artists []artistEntry `json:"artists"`
	Count   int           `json:"count"`
}

type artistEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type releaseSearchResponse struct {
	Releases []releaseEntry `json:"releases"`
	Count    int            `json:"count"`
}

type releaseEntry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Score        int    `json:"score"`
	Date         string `json:"date"`
	ArtistCredit []struct {
		Name string `json:"name"`
	} `json:"artist-credit"`
}

func (r releaseEntry) artistName() string {
	if len(r.ArtistCredit) == 0 {
		return ""
	}
	return r.ArtistCredit[0].Name
}
