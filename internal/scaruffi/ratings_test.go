package scaruffi

import (
	"testing"
)

func TestParseRatingsPage(t *testing.T) {
	page, err := ParseRatingsPage(openFixture(t, "ratings.html"), NewRatingsPath, 0)
	if err != nil {
		t.Fatalf("ParseRatingsPage: %v", err)
	}

	if len(page.Artists) != 4 {
		t.Errorf("expected 4 artists, got %d: %v", len(page.Artists), page.Artists)
	}
	if page.Artists["vol6/porcupin.html"] != "Porcupine Tree" {
		t.Error("artist without a rated album should still be recorded")
	}
	if _, ok := page.Artists["vol8/offsite.html"]; ok {
		t.Error("off-site anchor should be excluded")
	}

	want := []struct {
		artistURL, name string
		rating          float64
	}{
		{"vol7/goteam.html", "Get Up Sequences Part One", 4},
		{"jazz/leppin.html", "Ensemble Volcanic Ash", 6.5},
		{"vol8/youroldd.html", "Krutoy Edition", 7},
	}
	if len(page.Albums) != len(want) {
		t.Fatalf("expected %d albums, got %d: %+v", len(want), len(page.Albums), page.Albums)
	}
	for i, w := range want {
		got := page.Albums[i]
		if got.ArtistURL != w.artistURL || got.Name != w.name || got.Rating != w.rating {
			t.Errorf("album %d = %+v, want %+v", i, got, w)
		}
		if got.Year != 0 {
			t.Errorf("album %d: new.html rows carry no release year, got %d", i, got.Year)
		}
	}
}

func TestParseRatingsPageYearly(t *testing.T) {
	page, err := ParseRatingsPage(openFixture(t, "ratings.html"), YearRatingsPath(2018), 2018)
	if err != nil {
		t.Fatalf("ParseRatingsPage: %v", err)
	}
	for _, a := range page.Albums {
		if a.Year != 2018 {
			t.Errorf("album %q year = %d, want 2018", a.Name, a.Year)
		}
	}
}

func TestYearRatingsPath(t *testing.T) {
	if got := YearRatingsPath(1995); got != "cdreview/1995.html" {
		t.Errorf("YearRatingsPath(1995) = %q", got)
	}
}
