package deezer

type artistSearchResponse struct {
	Data  []artistEntry `json:"data"`
	Total int           `json:"total"`
}

type artistEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	PictureXL string `json:"picture_xl"`
}

type albumSearchResponse struct {
	Data  []albumEntry `json:"data"`
	Total int          `json:"total"`
}

type albumEntry struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	CoverXL string `json:"cover_xl"`
	Artist  struct {
		Name string `json:"name"`
	} `json:"artist"`
}
