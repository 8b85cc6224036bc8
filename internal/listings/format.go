package listings

import (
	"fmt"
	"strings"

	"github.com/inmolabs/asesorbot/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	spanishPrinter = message.NewPrinter(language.MustParse("es-MX"))
	englishPrinter = message.NewPrinter(language.MustParse("en-US"))
)

func printerFor(lang string) *message.Printer {
	if lang == "en" {
		return englishPrinter
	}
	return spanishPrinter
}

// FormatPrice renders a price in the locale's currency format, e.g.
// "$1,800,000" for both es-MX and en-US.
func FormatPrice(price int64, lang string) string {
	return printerFor(lang).Sprintf("$%v", number.Decimal(price))
}

// FormatResults renders the matched-listings summary sent to the user.
// An empty match set yields the localized no-results text.
func FormatResults(matched []models.Listing, lang string) string {
	if len(matched) == 0 {
		if lang == "en" {
			return "I couldn't find properties matching your search in our inventory."
		}
		return "No encontré propiedades que coincidan con tu búsqueda en nuestro inventario."
	}

	var header, footer string
	if lang == "en" {
		header = fmt.Sprintf("📋 I found %d property(ies) that might interest you:", len(matched))
		footer = "Would you like more information about any of these properties?"
	} else {
		header = fmt.Sprintf("📋 Encontré %d propiedad(es) que podrían interesarte:", len(matched))
		footer = "¿Te gustaría más información sobre alguna de estas propiedades?"
	}

	entries := make([]string, 0, len(matched))
	for _, l := range matched {
		entry := fmt.Sprintf("🏠 *%s*\n📍 %s\n💰 %s", l.Title, l.Location, FormatPrice(l.Price, lang))
		if l.Description != "" {
			entry += "\n" + l.Description
		}
		entries = append(entries, entry)
	}

	return header + "\n\n" + strings.Join(entries, "\n\n") + "\n\n" + footer
}

// FormatInventory renders the complete inventory as a compact list.
func FormatInventory(snapshot []models.Listing, lang string) string {
	var header string
	if lang == "en" {
		header = "📋 COMPLETE PROPERTY INVENTORY:\n"
	} else {
		header = "📋 INVENTARIO COMPLETO DE PROPIEDADES:\n"
	}
	lines := make([]string, 0, len(snapshot))
	for _, l := range snapshot {
		lines = append(lines, fmt.Sprintf("%d. *%s* - %s - %s", l.ID, l.Title, l.Location, FormatPrice(l.Price, lang)))
	}
	return header + strings.Join(lines, "\n")
}
