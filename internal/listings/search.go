// Package listings implements deterministic matching and rendering of the
// property inventory snapshot.
//
// Matching is purely local: no external calls, total over any input text.
// It feeds the classifier's matched-listings result and short-circuits the
// generation call when a strong local match exists.
package listings

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/inmolabs/asesorbot/internal/models"
)

// typeVocabulary maps property-type words (Spanish and English) to listing types.
var typeVocabulary = map[string]models.ListingType{
	"casa":         models.ListingTypeHouse,
	"casas":        models.ListingTypeHouse,
	"house":        models.ListingTypeHouse,
	"houses":       models.ListingTypeHouse,
	"departamento": models.ListingTypeApartment,
	"depa":         models.ListingTypeApartment,
	"apartamento":  models.ListingTypeApartment,
	"apartment":    models.ListingTypeApartment,
	"flat":         models.ListingTypeApartment,
	"terreno":      models.ListingTypeLand,
	"terrenos":     models.ListingTypeLand,
	"lote":         models.ListingTypeLand,
	"land":         models.ListingTypeLand,
	"lot":          models.ListingTypeLand,
	"quinta":       models.ListingTypeRanch,
	"quintas":      models.ListingTypeRanch,
	"ranch":        models.ListingTypeRanch,
}

// inventoryPhrases trigger the full-inventory branch even without a concrete match.
var inventoryPhrases = []string{
	"inventario",
	"propiedades disponibles",
	"que propiedades",
	"qué propiedades",
	"que tienes",
	"qué tienes",
	"inventory",
	"available properties",
	"what properties",
	"listings",
}

// priceMention captures a number followed by an optional magnitude suffix.
var priceMention = regexp.MustCompile(`(?i)(\d[\d,.]*)\s*(millones|millón|millon|million|mdp|mil|thousand|k|m)?`)

// upperBoundPhrases and lowerBoundPhrases mark one-sided price constraints.
var (
	upperBoundPhrases = []string{"menos de", "máximo", "maximo", "hasta", "under", "less than", "at most", "below"}
	lowerBoundPhrases = []string{"más de", "mas de", "mínimo", "minimo", "desde", "over", "more than", "at least", "above"}
)

// priceRange is a half-open budget constraint extracted from free text.
type priceRange struct {
	min int64
	max int64
}

// Match filters the snapshot by the criteria found in the text: property
// type, location substring, and price range. It returns nil when the text
// carries no recognizable criterion at all, so that arbitrary chatter does
// not "match" the whole inventory.
func Match(text string, snapshot []models.Listing) []models.Listing {
	if strings.TrimSpace(text) == "" || len(snapshot) == 0 {
		return nil
	}
	lower := strings.ToLower(text)

	matchedType, hasType := matchType(lower)
	matchedLocation := matchLocation(lower, snapshot)
	budget, hasBudget := parsePriceRange(lower)

	if !hasType && matchedLocation == "" && !hasBudget {
		return nil
	}

	var results []models.Listing
	for _, l := range snapshot {
		if hasType && l.Type != matchedType {
			continue
		}
		if matchedLocation != "" && !strings.Contains(strings.ToLower(l.Location), matchedLocation) {
			continue
		}
		if hasBudget && (l.Price < budget.min || l.Price > budget.max) {
			continue
		}
		results = append(results, l)
	}
	return results
}

// MentionsInventory reports whether the text asks for the inventory as a whole.
func MentionsInventory(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range inventoryPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func matchType(lower string) (models.ListingType, bool) {
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && r != 'á' && r != 'é' && r != 'í' && r != 'ó' && r != 'ú' && r != 'ñ'
	}) {
		if t, ok := typeVocabulary[word]; ok {
			return t, true
		}
	}
	return "", false
}

func matchLocation(lower string, snapshot []models.Listing) string {
	for _, l := range snapshot {
		loc := strings.ToLower(l.Location)
		if loc != "" && strings.Contains(lower, loc) {
			return loc
		}
	}
	return ""
}

// parsePriceRange extracts a budget constraint from the text. One-sided
// phrases ("menos de X", "over X") bound one end; two prices form a range; a
// single bare price becomes a ±20% band around the mentioned amount.
func parsePriceRange(lower string) (priceRange, bool) {
	matches := priceMention.FindAllStringSubmatch(lower, -1)
	var prices []int64
	for _, m := range matches {
		if m[2] == "" {
			// A bare number without a magnitude suffix is too ambiguous to
			// treat as a price (could be a street number or a count).
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		switch m[2] {
		case "mil", "thousand", "k":
			f *= 1_000
		case "millones", "millón", "millon", "million", "mdp", "m":
			f *= 1_000_000
		}
		prices = append(prices, int64(f))
	}
	if len(prices) == 0 {
		return priceRange{}, false
	}

	minPrice := prices[0]
	maxPrice := prices[0]
	for _, p := range prices[1:] {
		if p < minPrice {
			minPrice = p
		}
		if p > maxPrice {
			maxPrice = p
		}
	}

	if containsAny(lower, upperBoundPhrases) {
		return priceRange{min: 0, max: minPrice}, true
	}
	if containsAny(lower, lowerBoundPhrases) {
		return priceRange{min: maxPrice, max: math.MaxInt64}, true
	}
	if len(prices) >= 2 {
		return priceRange{min: minPrice, max: maxPrice}, true
	}
	// Single price without a direction: assume a ±20% band.
	p := prices[0]
	return priceRange{min: p - p/5, max: p + p/5}, true
}

func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
