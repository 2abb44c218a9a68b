package spotify

type anonymousTokenResponse struct {
	AccessToken           string `json:"accessToken"`
	ExpirationTimestampMs int64  `json:"accessTokenExpirationTimestampMs"`
}

type imageEntry struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type artistEntry struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Images []imageEntry `json:"images"`
}

type artistSearchResponse struct {
	BestMatch struct {
		Items []artistEntry `json:"items"`
	} `json:"best_match"`
	Artists struct {
		Items []artistEntry `json:"items"`
	} `json:"artists"`
}

type albumEntry struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	ReleaseDate string       `json:"release_date"`
	Images      []imageEntry `json:"images"`
	Artists     []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (e albumEntry) artistName() string {
	if len(e.Artists) == 0 {
		return ""
	}
	return e.Artists[0].Name
}

type albumSearchResponse struct {
	BestMatch struct {
		Items []albumEntry `json:"items"`
	} `json:"best_match"`
	Albums struct {
		Items []albumEntry `json:"items"`
	} `json:"albums"`
}
