package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"kw_crawler/models"
)

var (
	digitRun  = regexp.MustCompile(`\d+`)
	sqMeters  = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*m2\b`)
	slugStrip = regexp.MustCompile(`[^a-z0-9]+`)
)

// firstInt returns the first digit run in s, tolerating thousand
// separators ("1 234 imóveis" -> 1234).
func firstInt(s string) (int, bool) {
	compact := strings.NewReplacer(" ", "", " ", "", ".", "").Replace(s)
	match := digitRun.FindString(compact)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// cleanUnits normalizes the ASCII area notation the site emits in some
// locales ("85 m2" -> "85 m²").
func cleanUnits(s string) string {
	return sqMeters.ReplaceAllString(s, "$1 m²")
}

func slugify(s string) string {
	replacer := strings.NewReplacer(
		"á", "a", "à", "a", "ã", "a", "â", "a",
		"é", "e", "ê", "e", "í", "i",
		"ó", "o", "õ", "o", "ô", "o",
		"ú", "u", "ç", "c",
	)
	s = replacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// mapStatus translates the site's status labels. Unknown labels fall into
// the standard bucket rather than failing the scrape.
func mapStatus(label string) models.ListingStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "novo", "new":
		return models.StatusNew
	case "recente", "recent":
		return models.StatusRecent
	case "reservado", "reserved", "sob proposta", "under offer":
		return models.StatusAgreed
	case "vendido", "sold", "arrendado", "rented":
		return models.StatusSold
	default:
		return models.StatusStandard
	}
}

// parseAttributes reads the key/value detail rows ("Quartos: 2"). Rows
// without a colon are skipped.
func parseAttributes(html string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	attrs := map[string]string{}
	doc.Find(".property-details li, .property-characteristics li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		key, value, found := strings.Cut(text, ":")
		if !found {
			return
		}
		key = strings.TrimSpace(key)
		value = cleanUnits(strings.TrimSpace(value))
		if key != "" && value != "" {
			attrs[key] = value
		}
	})

	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

func parseFeatures(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var features []string
	seen := map[string]bool{}
	doc.Find(".property-features li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		features = append(features, text)
	})
	return features, nil
}

// parsePhotoURLs collects gallery image URLs, preferring data-src over
// src for lazily loaded slides.
func parsePhotoURLs(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var urls []string
	seen := map[string]bool{}
	doc.Find(".gallery img, .property-gallery img").Each(func(_ int, sel *goquery.Selection) {
		url, ok := sel.Attr("data-src")
		if !ok || url == "" {
			url, _ = sel.Attr("src")
		}
		url = strings.TrimSpace(url)
		if url == "" || strings.HasPrefix(url, "data:") || seen[url] {
			return
		}
		seen[url] = true
		urls = append(urls, url)
	})
	return urls, nil
}
