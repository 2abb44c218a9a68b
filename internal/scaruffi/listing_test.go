package scaruffi

import (
	"os"
	"path/filepath"
	"testing"
)

func openFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("opening fixture %s: %v", name, err)
	}
	t.Cleanup(func() { f.Close() }) //nolint:errcheck
	return f
}

func TestParseRockListing(t *testing.T) {
	artists, err := ParseRockListing(openFixture(t, "groups.html"))
	if err != nil {
		t.Fatalf("ParseRockListing: %v", err)
	}

	want := map[string]string{
		"vol5/beefheart.html": "Captain Beefheart",
		"vol2/velvet.html":    "Velvet Underground",
		"avant/young.html":    "La Monte Young",
	}
	if len(artists) != len(want) {
		t.Errorf("expected %d artists, got %d: %v", len(want), len(artists), artists)
	}
	for url, name := range want {
		if artists[url] != name {
			t.Errorf("artists[%q] = %q, want %q", url, artists[url], name)
		}
	}
	// Navigation and off-site links are excluded
	if _, ok := artists["history/timeline.html"]; ok {
		t.Error("non-artist page should be excluded")
	}
}

func TestParseJazzListing(t *testing.T) {
	artists, err := ParseJazzListing(openFixture(t, "jazz.html"))
	if err != nil {
		t.Fatalf("ParseJazzListing: %v", err)
	}

	if len(artists) != 2 {
		t.Errorf("expected 2 artists, got %d: %v", len(artists), artists)
	}
	if artists["jazz/coltrane.html"] != "John Coltrane" {
		t.Errorf("missing coltrane: %v", artists)
	}
	if artists["jazz/mingus.html"] != "Charles Mingus" {
		t.Errorf("missing mingus: %v", artists)
	}
}

func TestParseVolumeListing(t *testing.T) {
	artists, err := ParseVolumeListing(5, openFixture(t, "vol5.html"))
	if err != nil {
		t.Fatalf("ParseVolumeListing: %v", err)
	}

	want := map[string]string{
		"vol5/beefheart.html": "Captain Beefheart",
		"vol5/residents.html": "Residents",
		"vol5/pere.html":      "Pere Ubu",
	}
	if len(artists) != len(want) {
		t.Errorf("expected %d artists, got %d: %v", len(want), len(artists), artists)
	}
	for url, name := range want {
		if artists[url] != name {
			t.Errorf("artists[%q] = %q, want %q", url, artists[url], name)
		}
	}
}

func TestNormalizeArtistURL(t *testing.T) {
	tests := []struct {
		href, base, want string
	}{
		{"../vol5/beefheart.html", "music/groups.html", "vol5/beefheart.html"},
		{"beefheart.html", "vol5/", "vol5/beefheart.html"},
		{"/jazz/coltrane.html", "music/groups.html", "jazz/coltrane.html"},
		{"../avant/young.html", "music/groups.html", "avant/young.html"},
		{"http://example.com/vol5/x.html", "music/groups.html", ""},
		{"../history/timeline.html", "music/groups.html", ""},
		{"mailto:someone@example.com", "jazz/musician.html", ""},
	}
	for _, tt := range tests {
		if got := normalizeArtistURL(tt.href, tt.base); got != tt.want {
			t.Errorf("normalizeArtistURL(%q, %q) = %q, want %q", tt.href, tt.base, got, tt.want)
		}
	}
}
