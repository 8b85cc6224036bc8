package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inmolabs/asesorbot/internal/listings"
	"github.com/inmolabs/asesorbot/internal/models"
)

// Composer builds the grounded prompt pair for a generation turn. The system
// prompt is rebuilt from scratch every turn from the current inventory
// snapshot and advisor instructions; nothing about it is cached, so listing
// changes take effect on the next message.
type Composer struct{}

// NewComposer creates a prompt composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Compose returns the user prompt and system prompt for one turn.
//
// contextBlock is the rendered history plus current query; snapshot is the
// full active inventory; matched are the listings the local matcher found for
// this query (inlined separately so the model answers from them first); name
// is the customer's display name, empty when unknown; instructions are
// advisor-authored rules appended verbatim to the persona.
func (c *Composer) Compose(contextBlock string, snapshot, matched []models.Listing, name string, instructions []string) (userPrompt, systemPrompt string) {
	var b strings.Builder

	b.WriteString("Eres un asesor inmobiliario profesional que atiende clientes por WhatsApp.\n\n")
	b.WriteString("Reglas de comportamiento:\n")
	b.WriteString("- Responde SIEMPRE en el idioma del cliente (español o inglés).\n")
	b.WriteString("- Respuestas cortas y directas, de dos a cuatro oraciones; esto es WhatsApp, no un correo.\n")
	b.WriteString("- No repitas frases hechas ni saludos en cada mensaje.\n")
	b.WriteString("- Usa solo formato básico de WhatsApp: *negritas* y listas simples.\n")
	b.WriteString("- Responde ÚNICAMENTE con información del inventario listado abajo; nunca inventes propiedades, precios ni características.\n")
	b.WriteString("- Si el cliente no menciona presupuesto ni zona, pregunta por ellos antes de recomendar.\n")
	b.WriteString("- Si el cliente muestra interés en una propiedad, ofrece agendar una visita con un asesor.\n")

	if name != "" {
		fmt.Fprintf(&b, "- El cliente se llama %s; puedes usar su nombre con moderación.\n", name)
	}

	if len(instructions) > 0 {
		b.WriteString("\nInstrucciones adicionales del asesor:\n")
		for _, ins := range instructions {
			b.WriteString("- ")
			b.WriteString(ins)
			b.WriteString("\n")
		}
	}

	if len(matched) > 0 {
		b.WriteString("\nPropiedades que coinciden con la búsqueda actual del cliente (responde a partir de estas primero):\n")
		for _, l := range matched {
			fmt.Fprintf(&b, "- %s | %s | %s | %s\n", l.Title, l.Location, listings.FormatPrice(l.Price, models.DefaultLanguage), l.Type)
		}
	}

	b.WriteString("\nInventario completo de propiedades activas (JSON):\n")
	if data, err := json.Marshal(snapshot); err == nil {
		b.Write(data)
	} else {
		b.WriteString("[]")
	}

	return contextBlock, b.String()
}
