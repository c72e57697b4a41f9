package message

import (
	"fmt"
	"strings"
)

type noun struct {
	singular string
	plural   string
	feminine bool
}

// Locale holds the vocabulary of one notification language
type Locale struct {
	Name  string
	nouns map[string]noun

	and   string
	empty string

	article  func(n noun) string
	detected func(total int, feminine bool) string
	inZone   func(sentence, zone string) string

	summaryValid   string
	summaryFalse   string
	summaryByClass string
	summaryByZone  string
}

var French = &Locale{
	Name: "fr",
	nouns: map[string]noun{
		"person":     {"personne", "personnes", true},
		"dog":        {"chien", "chiens", false},
		"cat":        {"chat", "chats", false},
		"car":        {"voiture", "voitures", true},
		"truck":      {"camion", "camions", false},
		"motorcycle": {"moto", "motos", true},
		"bicycle":    {"vélo", "vélos", false},
		"bird":       {"oiseau", "oiseaux", false},
	},
	and:   " et ",
	empty: "Aucune détection",
	article: func(n noun) string {
		if n.feminine {
			return "une"
		}
		return "un"
	},
	detected: func(total int, feminine bool) string {
		s := "détecté"
		if feminine {
			s += "e"
		}
		if total > 1 {
			s += "s"
		}
		return s
	},
	inZone: func(sentence, zone string) string {
		return fmt.Sprintf("%s dans la %s", sentence, zone)
	},
	summaryValid:   "Détections valides",
	summaryFalse:   "Fausses détections",
	summaryByClass: "Par classe",
	summaryByZone:  "Par zone",
}

var English = &Locale{
	Name: "en",
	nouns: map[string]noun{
		"person":     {"person", "people", false},
		"dog":        {"dog", "dogs", false},
		"cat":        {"cat", "cats", false},
		"car":        {"car", "cars", false},
		"truck":      {"truck", "trucks", false},
		"motorcycle": {"motorcycle", "motorcycles", false},
		"bicycle":    {"bicycle", "bicycles", false},
		"bird":       {"bird", "birds", false},
	},
	and:   " and ",
	empty: "No detection",
	article: func(n noun) string {
		if n.singular != "" && strings.ContainsRune("aeiou", rune(n.singular[0])) {
			return "an"
		}
		return "a"
	},
	detected: func(int, bool) string {
		return "detected"
	},
	inZone: func(sentence, zone string) string {
		return fmt.Sprintf("%s in %s", sentence, zone)
	},
	summaryValid:   "Valid detections",
	summaryFalse:   "False detections",
	summaryByClass: "By class",
	summaryByZone:  "By zone",
}

var locales = map[string]*Locale{
	French.Name:  French,
	English.Name: English,
}

// lookup falls back to the raw class label with an "s" plural
func (l *Locale) lookup(class string) noun {
	if n, ok := l.nouns[class]; ok {
		return n
	}
	return noun{singular: class, plural: class + "s"}
}

// Label is the noun form of class for count n
func (l *Locale) Label(class string, n int) string {
	nn := l.lookup(class)
	if n > 1 {
		return nn.plural
	}
	return nn.singular
}
