package scaruffi

import (
	"strings"
	"testing"
)

func TestParseArtistPage(t *testing.T) {
	artist, err := ParseArtistPage(openFixture(t, "artist.html"), "vol5/beefheart.html")
	if err != nil {
		t.Fatalf("ParseArtistPage: %v", err)
	}
	if artist == nil {
		t.Fatal("expected artist, got nil")
	}

	if artist.Name != "Captain Beefheart" {
		t.Errorf("name = %q", artist.Name)
	}
	if artist.URL != "vol5/beefheart.html" {
		t.Errorf("url = %q", artist.URL)
	}

	if !strings.HasPrefix(artist.Bio, "Don Van Vliet was born in Glendale.") {
		t.Errorf("bio start mismatch: %q", artist.Bio)
	}
	if !strings.Contains(artist.Bio, "\n") {
		t.Error("expected br to become a newline in bio")
	}
	if !strings.Contains(artist.Bio, "His masterpiece remains") {
		t.Errorf("bio missing paragraph: %q", artist.Bio)
	}
	if strings.Contains(artist.Bio, "Traduzione") {
		t.Error("translation cell should not be part of the bio")
	}

	wantAlbums := []struct {
		name   string
		year   int
		rating float64
	}{
		{"Safe as Milk", 1967, 8},
		{"Trout Mask Replica", 1969, 9.5},
		{"Unconditionally Guaranteed", 0, 5},
	}
	if len(artist.Albums) != len(wantAlbums) {
		t.Fatalf("expected %d albums, got %d: %+v", len(wantAlbums), len(artist.Albums), artist.Albums)
	}
	for i, want := range wantAlbums {
		got := artist.Albums[i]
		if got.Name != want.name || got.Year != want.year || got.Rating != want.rating {
			t.Errorf("album %d = %+v, want %+v", i, got, want)
		}
		if !got.RatedOnArtistPage {
			t.Errorf("album %d should be marked as rated on the artist page", i)
		}
	}

	if len(artist.RelatedArtists) != 1 || artist.RelatedArtists[0] != "vol5/zappa.html" {
		t.Errorf("related artists = %v, want [vol5/zappa.html]", artist.RelatedArtists)
	}
}

func TestParseArtistPageRejectsNonArtistPath(t *testing.T) {
	artist, err := ParseArtistPage(openFixture(t, "artist.html"), "music/groups.html")
	if err != nil {
		t.Fatalf("ParseArtistPage: %v", err)
	}
	if artist != nil {
		t.Errorf("expected nil for non-artist path, got %+v", artist)
	}
}

func TestParseArtistPageEmptyBody(t *testing.T) {
	artist, err := ParseArtistPage(strings.NewReader("<html><body></body></html>"), "vol5/empty.html")
	if err != nil {
		t.Fatalf("ParseArtistPage: %v", err)
	}
	if artist == nil {
		t.Fatal("expected artist, got nil")
	}
	if artist.Name != "" || len(artist.Albums) != 0 || artist.Bio != "" {
		t.Errorf("expected empty artist, got %+v", artist)
	}
}

func TestAlbumName(t *testing.T) {
	tests := []struct {
		line, want string
	}{
		{"Trout Mask Replica (Straight, 1969), 9.5/10", "Trout Mask Replica"},
		{"Unconditionally Guaranteed, 5/10", "Unconditionally Guaranteed"},
		{"Doc at the Radar Station (Virgin, 1980), 8/10", "Doc at the Radar Station"},
		{"8/10", ""},
	}
	for _, tt := range tests {
		if got := albumName(tt.line); got != tt.want {
			t.Errorf("albumName(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
