package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"kw_crawler/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func TestParseAttributes(t *testing.T) {
	html := string(loadFixture(t, "listing_detail.html"))

	attrs, err := parseAttributes(html)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d: %v", len(attrs), attrs)
	}
	if attrs["Quartos"] != "2" {
		t.Fatalf("expected Quartos=2, got %q", attrs["Quartos"])
	}
	if attrs["Área bruta"] != "85 m²" {
		t.Fatalf("expected normalized area unit, got %q", attrs["Área bruta"])
	}
	if _, ok := attrs["Certificado energético"]; ok {
		t.Fatal("rows without a value must be skipped")
	}
}

func TestParseFeaturesDeduplicates(t *testing.T) {
	html := string(loadFixture(t, "listing_detail.html"))

	features, err := parseFeatures(html)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 unique features, got %v", features)
	}
	if features[0] != "Varanda" || features[2] != "Arrecadação" {
		t.Fatalf("unexpected feature order %v", features)
	}
}

func TestParsePhotoURLs(t *testing.T) {
	html := string(loadFixture(t, "listing_detail.html"))

	urls, err := parsePhotoURLs(html)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 photo urls, got %v", urls)
	}
	if urls[0] != "https://cdn.kwportugal.pt/listings/123/photo-1.jpg" {
		t.Fatalf("unexpected first photo %s", urls[0])
	}
	// data-src wins over the lazy-loading placeholder
	if urls[1] != "https://cdn.kwportugal.pt/listings/123/photo-2.jpg" {
		t.Fatalf("unexpected second photo %s", urls[1])
	}
}

func TestFirstInt(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1 234 imóveis", 1234, true},
		{"1.234 resultados", 1234, true},
		{"57", 57, true},
		{"sem resultados", 0, false},
	}
	for _, c := range cases {
		got, ok := firstInt(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("firstInt(%q) = %d,%v; want %d,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCleanUnits(t *testing.T) {
	got := cleanUnits("Moradia com 120 m2 e terreno de 300,5 m2")
	want := "Moradia com 120 m² e terreno de 300,5 m²"
	if got != want {
		t.Fatalf("cleanUnits = %q, want %q", got, want)
	}

	// words containing m2 as a substring are left alone
	if cleanUnits("referência km2045") != "referência km2045" {
		t.Fatal("cleanUnits must only rewrite area notations")
	}
}

func TestSlugify(t *testing.T) {
	got := slugify("Apartamento T2 com varanda, São João!")
	if got != "apartamento-t2-com-varanda-sao-joao" {
		t.Fatalf("unexpected slug %q", got)
	}
}

func TestMapStatusUnknownFallsBack(t *testing.T) {
	if mapStatus("Vendido") != models.StatusSold {
		t.Fatal("expected sold")
	}
	if mapStatus("Sob Proposta") != models.StatusAgreed {
		t.Fatal("expected agreed")
	}
	if mapStatus("Oportunidade da semana") != models.StatusStandard {
		t.Fatal("unknown labels must map to standard")
	}
}
