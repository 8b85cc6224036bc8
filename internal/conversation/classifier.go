package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/inmolabs/asesorbot/internal/genai"
	"github.com/inmolabs/asesorbot/internal/listings"
	"github.com/inmolabs/asesorbot/internal/models"
)

const classifierSystemPrompt = `Eres un clasificador de mensajes para un asistente inmobiliario por WhatsApp.
Analiza el mensaje del cliente y responde ÚNICAMENTE con un objeto JSON con esta forma exacta:
{"language":"es","is_domain_query":true,"needs_human":false,"is_about_capabilities":false,"is_image_request":false}

Reglas:
- "language": "es" o "en" según el idioma del mensaje.
- "is_domain_query": true si el mensaje trata de bienes raíces, propiedades, precios, visitas o ubicaciones.
- "needs_human": true si el cliente pide explícitamente hablar con una persona, un asesor humano o un agente.
- "is_about_capabilities": true si el cliente pregunta qué puede hacer el asistente o cómo funciona.
- "is_image_request": true si el cliente pide fotos o imágenes de una propiedad.
No incluyas texto fuera del JSON.`

// Classifier derives a routing decision for each inbound message. Structural
// signals (inventory matches, inventory mentions) come from a local matcher;
// semantic signals (language, intent, escalation) are delegated to the
// generator. Classify is total: it never returns an error, degrading to a safe
// default instead.
type Classifier struct {
	gen genai.Generator
}

// NewClassifier creates a classifier backed by the given generator.
func NewClassifier(gen genai.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// delegatedResult is the JSON shape requested from the generator. Absent
// fields keep their zero values, so a partial object still parses into a
// usable decision.
type delegatedResult struct {
	Language            string `json:"language"`
	IsDomainQuery       bool   `json:"is_domain_query"`
	NeedsHuman          bool   `json:"needs_human"`
	IsAboutCapabilities bool   `json:"is_about_capabilities"`
	IsImageRequest      bool   `json:"is_image_request"`
}

// Classify produces the classification for one message against the current
// inventory snapshot. Local matching runs first and both of its signals
// (matched listings and the inventory mention) survive any delegated-
// classifier failure; only the delegated flags reset to their defaults.
func (c *Classifier) Classify(ctx context.Context, text string, snapshot []models.Listing) models.Classification {
	matched := listings.Match(text, snapshot)
	mentionsInventory := listings.MentionsInventory(text)

	raw, err := c.gen.Generate(ctx, classifierSystemPrompt, text)
	if err != nil {
		slog.Warn("Classifier.Classify: delegated classification failed, using safe default", "error", err)
		cls := models.SafeDefaultClassification(matched)
		cls.IsInventoryQuery = mentionsInventory
		return cls
	}

	result, err := parseDelegated(raw)
	if err != nil {
		slog.Warn("Classifier.Classify: unparseable classifier output, using safe default", "error", err, "raw", raw)
		cls := models.SafeDefaultClassification(matched)
		cls.IsInventoryQuery = mentionsInventory
		return cls
	}

	lang := result.Language
	if lang != "es" && lang != "en" {
		lang = models.DefaultLanguage
	}

	cls := models.Classification{
		Language:            lang,
		IsDomainQuery:       result.IsDomainQuery,
		NeedsHuman:          result.NeedsHuman,
		IsAboutCapabilities: result.IsAboutCapabilities,
		IsImageRequest:      result.IsImageRequest,
		IsInventoryQuery:    mentionsInventory,
		MatchedListings:     matched,
	}
	slog.Debug("Classifier.Classify: classified message",
		"language", cls.Language,
		"isDomainQuery", cls.IsDomainQuery,
		"needsHuman", cls.NeedsHuman,
		"matchedListings", len(matched))
	return cls
}

// parseDelegated extracts and parses the JSON object from raw model output.
// Models wrap JSON in code fences or prose often enough that the first
// balanced object is located before parsing.
func parseDelegated(raw string) (delegatedResult, error) {
	var result delegatedResult

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	obj, err := firstJSONObject(cleaned)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return result, err
	}
	return result, nil
}

// firstJSONObject returns the first balanced {...} substring, tracking string
// literals so braces inside values do not break the balance count.
func firstJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errNoJSONObject
}

var errNoJSONObject = jsonExtractError("no balanced JSON object in classifier output")

type jsonExtractError string

func (e jsonExtractError) Error() string { return string(e) }
