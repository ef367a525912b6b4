// Package classifier scores a query against every routable destination using
// four independent methods and combines them into one ranked result.
package classifier

import (
	"regexp"

	"github.com/terrava/agrocore/internal/route"
)

// Profile holds the static classification material for one destination.
type Profile struct {
	Keywords []string
	Patterns []*regexp.Regexp
	Boost    float64
	Examples []string
}

// Registry maps destinations to their classification profiles. It is built
// once at startup and read-only afterwards, so it is safe to share across runs.
type Registry struct {
	profiles map[route.Destination]*Profile
}

// Profiles returns the profile map. Callers must not mutate it.
func (r *Registry) Profiles() map[route.Destination]*Profile {
	return r.profiles
}

// Labels returns the destination names, for the external-model contract.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.profiles))
	for d := range r.profiles {
		labels = append(labels, string(d))
	}
	return labels
}

// NewRegistry builds the default destination profiles. Keywords and examples
// are French-first because the advisory service serves French farmers.
func NewRegistry() *Registry {
	return &Registry{profiles: map[route.Destination]*Profile{
		route.WeatherAgent: {
			Keywords: []string{
				"météo", "meteo", "pluie", "pleuvoir", "pleut", "vent", "gel",
				"température", "temperature", "prévision", "prevision", "orage",
				"weather", "rain",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)va[- ]t[- ]il pleuvoir`),
				regexp.MustCompile(`(?i)quel(le)? temps`),
				regexp.MustCompile(`(?i)prévisions?\s+(météo|meteo)`),
				regexp.MustCompile(`(?i)fenêtre de (traitement|semis)`),
			},
			Boost: 0.15,
			Examples: []string{
				"Quelles sont les prévisions météo pour cette semaine ?",
				"Va-t-il pleuvoir demain sur ma parcelle ?",
				"Y a-t-il un risque de gel cette nuit ?",
				"Quand aurai-je une fenêtre de traitement sans vent ?",
			},
		},
		route.RegulatoryAgent: {
			Keywords: []string{
				"amm", "znt", "ephy", "homologué", "homologation", "autorisé",
				"autorisation", "dose", "produit", "traitement", "phyto", "réglementation",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bamm\b`),
				regexp.MustCompile(`(?i)\bznt\b`),
				regexp.MustCompile(`(?i)dose (homologuée|autorisée|maximale)`),
				regexp.MustCompile(`(?i)(puis|peut)[- ]je (traiter|utiliser|pulvériser)`),
			},
			Boost: 0.2,
			Examples: []string{
				"Ce produit a-t-il une AMM valide pour le blé ?",
				"Quelle est la ZNT à respecter près du cours d'eau ?",
				"Quelle dose maximale pour ce fongicide ?",
				"Puis-je traiter ma parcelle avec ce produit ?",
			},
		},
		route.FarmDataAgent: {
			Keywords: []string{
				"parcelle", "rendement", "semis", "récolte", "recolte", "culture",
				"exploitation", "historique", "blé", "maïs", "colza", "surface",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ma parcelle`),
				regexp.MustCompile(`(?i)mon exploitation`),
				regexp.MustCompile(`(?i)rendement (moyen|de)`),
				regexp.MustCompile(`(?i)dernier (traitement|semis)`),
			},
			Boost: 0.15,
			Examples: []string{
				"Quel est le rendement moyen de ma parcelle nord ?",
				"Quand ai-je fait le dernier traitement sur le blé ?",
				"Quelle surface ai-je semée en colza cette année ?",
				"Montre-moi l'historique de mes récoltes",
			},
		},
		route.GeneralAgent: {
			Keywords: []string{
				"bonjour", "merci", "aide", "conseil", "question", "information",
				"hello", "help",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)^(bonjour|salut|hello)`),
				regexp.MustCompile(`(?i)(peux|pouvez)[- ](tu|vous) m'aider`),
			},
			Boost: 0.05,
			Examples: []string{
				"Bonjour, pouvez-vous m'aider ?",
				"J'ai une question générale sur l'agriculture",
				"Merci pour votre aide",
			},
		},
	}}
}
