// Package analysis extracts structured features from raw farmer queries.
// Extraction is pure and deterministic: no external calls, no shared state.
package analysis

import "strings"

// Domain identifies the subject area a query belongs to.
type Domain string

const (
	DomainWeather    Domain = "weather"
	DomainRegulatory Domain = "regulatory"
	DomainFarmData   Domain = "farm_data"
	DomainGeneral    Domain = "general"
)

// QueryType classifies the shape of a query.
type QueryType string

const (
	TypeQuestion QueryType = "question"
	TypeAdvice   QueryType = "advice_request"
	TypePlanning QueryType = "planning_request"
	TypeAnalysis QueryType = "analysis_request"
	TypeGeneral  QueryType = "general"
)

// Urgency grades how soon the user expects an answer.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// QueryAnalysis is the immutable feature set derived from one query.
// Both routers consume it; nothing mutates it after Analyze returns.
type QueryAnalysis struct {
	WordCount          int       `json:"word_count"`
	CharCount          int       `json:"char_count"`
	ComplexityScore    float64   `json:"complexity_score"`
	PrimaryDomain      Domain    `json:"primary_domain"`
	DomainConfidence   float64   `json:"domain_confidence"`
	RequiresMultiStep  bool      `json:"requires_multi_step"`
	RequiresExternal   bool      `json:"requires_external_data"`
	RequiresDatabase   bool      `json:"requires_database_lookup"`
	QueryType          QueryType `json:"query_type"`
	UrgencyLevel       Urgency   `json:"urgency_level"`
}

// domainKeywords maps each domain to its trigger vocabulary. The service is
// French-first, so French terms dominate with English fallbacks.
var domainKeywords = map[Domain][]string{
	DomainWeather: {
		"météo", "meteo", "pluie", "pleuvoir", "pleut", "pleuvra", "vent",
		"température", "temperature", "gel", "neige", "orage", "prévision",
		"previsions", "weather", "rain", "forecast",
	},
	DomainRegulatory: {
		"amm", "znt", "ephy", "homologué", "homologation", "autorisé",
		"autorisation", "réglementation", "produit", "traitement", "dose",
		"phyto", "regulatory", "authorized",
	},
	DomainFarmData: {
		"parcelle", "rendement", "semis", "récolte", "recolte", "exploitation",
		"culture", "blé", "ble", "maïs", "mais", "colza", "field", "yield", "crop",
	},
}

// complexityKeywords are interrogative/analytic tokens that each raise the
// complexity score by one matched token.
var complexityKeywords = []string{
	"pourquoi", "comment", "analyser", "comparer", "expliquer", "optimiser",
	"stratégie", "strategie", "plan", "why", "how", "analyze", "compare",
	"explain", "optimize", "strategy",
}

var multiStepConnectors = []string{
	" then ", " also ", " and ", " puis ", " ensuite ", " et aussi ",
}

var highUrgencyTerms = []string{"urgent", "immédiatement", "immediatement", "vite", "emergency"}
var mediumUrgencyTerms = []string{"bientôt", "bientot", "cette semaine", "demain", "soon"}

// Analyze derives a QueryAnalysis from the query text and optional context.
// It must stay cheap: pure token scans, sub-millisecond on realistic input.
func Analyze(query string, qctx map[string]string) QueryAnalysis {
	lower := strings.ToLower(strings.TrimSpace(query))
	tokens := tokenize(lower)

	qa := QueryAnalysis{
		WordCount: len(tokens),
		CharCount: len(query),
	}

	qa.ComplexityScore = complexity(tokens)
	qa.PrimaryDomain, qa.DomainConfidence = primaryDomain(lower)
	qa.RequiresMultiStep = hasConnector(lower)
	qa.RequiresExternal = qa.PrimaryDomain == DomainWeather || qa.PrimaryDomain == DomainRegulatory
	qa.RequiresDatabase = qa.PrimaryDomain == DomainFarmData || qa.PrimaryDomain == DomainRegulatory
	qa.QueryType = queryType(lower)
	qa.UrgencyLevel = urgency(lower)

	// Context hints can only raise the database flag, never clear it.
	if qctx != nil {
		if _, ok := qctx["farm_id"]; ok {
			qa.RequiresDatabase = true
		}
	}
	return qa
}

func complexity(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var matched int
	for _, tok := range tokens {
		for _, kw := range complexityKeywords {
			if tok == kw {
				matched++
				break
			}
		}
	}
	score := float64(matched) / float64(len(tokens))
	if score > 1 {
		score = 1
	}
	return score
}

func primaryDomain(lower string) (Domain, float64) {
	best := DomainGeneral
	var bestScore float64
	for _, d := range []Domain{DomainWeather, DomainRegulatory, DomainFarmData} {
		kws := domainKeywords[d]
		var matches int
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		score := float64(matches) / float64(len(kws))
		// Strict inequality keeps "general" on ties.
		if score > bestScore {
			bestScore = score
			best = d
		}
	}
	if bestScore == 0 {
		return DomainGeneral, 0
	}
	return best, bestScore
}

func hasConnector(lower string) bool {
	padded := " " + lower + " "
	for _, c := range multiStepConnectors {
		if strings.Contains(padded, c) {
			return true
		}
	}
	return false
}

func queryType(lower string) QueryType {
	switch {
	case strings.Contains(lower, "analyser") || strings.Contains(lower, "analyze") ||
		strings.Contains(lower, "comparer") || strings.Contains(lower, "compare"):
		return TypeAnalysis
	case strings.Contains(lower, "planifier") || strings.Contains(lower, "plan ") ||
		strings.HasSuffix(lower, "plan") || strings.Contains(lower, "calendrier"):
		return TypePlanning
	case strings.Contains(lower, "conseil") || strings.Contains(lower, "recommand") ||
		strings.Contains(lower, "devrais") || strings.Contains(lower, "should i") ||
		strings.Contains(lower, "advice"):
		return TypeAdvice
	case strings.Contains(lower, "?") || strings.HasPrefix(lower, "quel") ||
		strings.HasPrefix(lower, "quand") || strings.HasPrefix(lower, "comment") ||
		strings.HasPrefix(lower, "pourquoi") || strings.HasPrefix(lower, "est-ce") ||
		strings.HasPrefix(lower, "what") || strings.HasPrefix(lower, "when") ||
		strings.HasPrefix(lower, "how"):
		return TypeQuestion
	default:
		return TypeGeneral
	}
}

func urgency(lower string) Urgency {
	for _, t := range highUrgencyTerms {
		if strings.Contains(lower, t) {
			return UrgencyHigh
		}
	}
	for _, t := range mediumUrgencyTerms {
		if strings.Contains(lower, t) {
			return UrgencyMedium
		}
	}
	return UrgencyLow
}

// tokenize splits text into lowercase word tokens, keeping accented runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}
