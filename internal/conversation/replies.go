package conversation

import (
	"fmt"
	"strings"
)

// ReplyKind selects a canned message. Canned texts are pure functions of
// (kind, language, name): same arguments, same text, no side effects.
type ReplyKind string

const (
	ReplyWelcome         ReplyKind = "welcome"
	ReplyCapabilities    ReplyKind = "capabilities"
	ReplyHandoff         ReplyKind = "handoff"
	ReplyFollowup        ReplyKind = "followup"
	ReplyContinue        ReplyKind = "continue"
	ReplyClosing         ReplyKind = "closing"
	ReplyAskName         ReplyKind = "ask_name"
	ReplyRegistered      ReplyKind = "registered"
	ReplyAnalyzingImage  ReplyKind = "analyzing_image"
	ReplyImageResult     ReplyKind = "image_result"
	ReplyGenerationError ReplyKind = "generation_error"
)

var spanishReplies = map[ReplyKind]string{
	ReplyWelcome:         "¡Hola%s! Soy tu asesor inmobiliario personal. ¿En qué puedo ayudarte hoy?",
	ReplyCapabilities:    "Puedo ayudarte a buscar propiedades por tipo, ubicación y presupuesto, darte detalles de nuestro inventario y coordinar una visita con un asesor. Pregúntame por ejemplo: \"casas en Escobedo de menos de 5 millones\".",
	ReplyHandoff:         "Entiendo%s, en un momento un asesor humano se pondrá en contacto contigo. Mientras tanto, ¿te gustaría conocer algunas de nuestras propiedades disponibles?",
	ReplyFollowup:        "¿Te gustaría que te ayude con algo más?",
	ReplyContinue:        "¡Perfecto%s! Cuéntame, ¿qué más te gustaría saber?",
	ReplyClosing:         "¡Gracias por tu visita%s! Cuando quieras retomar la búsqueda de tu propiedad ideal, aquí estaré.",
	ReplyAskName:         "Por cierto, ¿con quién tengo el gusto?",
	ReplyRegistered:      "¡Mucho gusto%s! Cuéntame, ¿qué tipo de propiedad estás buscando?",
	ReplyAnalyzingImage:  "%sEstoy analizando la imagen de la propiedad, dame un momento...",
	ReplyImageResult:     "He analizado la imagen de la propiedad. Se ve como una propiedad en buen estado. ¿Te gustaría saber más detalles sobre propiedades similares?",
	ReplyGenerationError: "Lo siento%s, tuve un problema al procesar tu mensaje. ¿Podrías intentarlo de nuevo?",
}

var englishReplies = map[ReplyKind]string{
	ReplyWelcome:         "Hi%s! I'm your personal real-estate advisor. How can I help you today?",
	ReplyCapabilities:    "I can help you search properties by type, location and budget, give you details from our inventory, and arrange a visit with an advisor. Try asking: \"houses in Escobedo under 5 million\".",
	ReplyHandoff:         "Understood%s, a human advisor will contact you shortly. In the meantime, would you like to see some of our available properties?",
	ReplyFollowup:        "Is there anything else I can help you with?",
	ReplyContinue:        "Great%s! Tell me, what else would you like to know?",
	ReplyClosing:         "Thanks for stopping by%s! Whenever you want to resume the search for your ideal property, I'll be here.",
	ReplyAskName:         "By the way, who do I have the pleasure of speaking with?",
	ReplyRegistered:      "Nice to meet you%s! Tell me, what kind of property are you looking for?",
	ReplyAnalyzingImage:  "%sI'm analyzing the property image, give me a moment...",
	ReplyImageResult:     "I've analyzed the property image. It looks like a property in good condition. Would you like more details about similar properties?",
	ReplyGenerationError: "I'm sorry%s, I had a problem processing your message. Could you try again?",
}

// Reply returns the canned text for a kind in the given language, optionally
// personalized with the user's display name. Unknown languages fall back to
// Spanish.
func Reply(kind ReplyKind, lang, name string) string {
	table := spanishReplies
	if lang == "en" {
		table = englishReplies
	}
	tmpl, ok := table[kind]
	if !ok {
		return ""
	}

	switch kind {
	case ReplyAnalyzingImage:
		prefix := ""
		if name != "" {
			prefix = name + ", "
		}
		return fmt.Sprintf(tmpl, prefix)
	default:
		if strings.Contains(tmpl, "%s") {
			insert := ""
			if name != "" {
				insert = " " + name
			}
			return fmt.Sprintf(tmpl, insert)
		}
		return tmpl
	}
}

// Affirmative and negative phrase sets per language for follow-up answers.
var (
	affirmativePhrases = map[string][]string{
		"es": {"si", "sí", "claro", "por supuesto", "ok", "vale", "de acuerdo", "sale"},
		"en": {"yes", "yeah", "yep", "sure", "ok", "okay", "of course"},
	}
	negativePhrases = map[string][]string{
		"es": {"no", "no gracias", "nada más", "nada mas", "así está bien", "asi esta bien"},
		"en": {"no", "no thanks", "nothing else", "that's all", "thats all"},
	}
)

// IsAffirmative reports whether the text is a clean affirmative answer in the
// given language. Matching is exact after trimming and lowercasing; anything
// longer is treated as a new query by the orchestrator.
func IsAffirmative(text, lang string) bool {
	return matchesPhrase(text, lang, affirmativePhrases)
}

// IsNegative reports whether the text is a clean negative answer in the given
// language.
func IsNegative(text, lang string) bool {
	return matchesPhrase(text, lang, negativePhrases)
}

func matchesPhrase(text, lang string, table map[string][]string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!¡")
	phrases, ok := table[lang]
	if !ok {
		phrases = table["es"]
	}
	for _, p := range phrases {
		if normalized == p {
			return true
		}
	}
	return false
}
