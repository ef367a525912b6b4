package analysis

import "testing"

func TestAnalyzeWeatherQuery(t *testing.T) {
	qa := Analyze("Quelles sont les prévisions météo pour cette semaine ?", nil)

	if qa.PrimaryDomain != DomainWeather {
		t.Errorf("got domain %q, want %q", qa.PrimaryDomain, DomainWeather)
	}
	if qa.DomainConfidence <= 0 {
		t.Errorf("got confidence %f, want > 0", qa.DomainConfidence)
	}
	if qa.QueryType != TypeQuestion {
		t.Errorf("got type %q, want %q", qa.QueryType, TypeQuestion)
	}
	if qa.UrgencyLevel != UrgencyMedium {
		t.Errorf("got urgency %q, want %q ('cette semaine')", qa.UrgencyLevel, UrgencyMedium)
	}
	if !qa.RequiresExternal {
		t.Error("weather queries require external data")
	}
}

func TestAnalyzeDomains(t *testing.T) {
	tests := []struct {
		query  string
		domain Domain
	}{
		{"Ce produit a-t-il une AMM valide pour le traitement du blé ?", DomainRegulatory},
		{"Quel est le rendement de ma parcelle nord ?", DomainFarmData},
		{"Bonjour, comment allez-vous ?", DomainGeneral},
		{"Va-t-il pleuvoir demain, quelle météo ?", DomainWeather},
	}
	for _, tt := range tests {
		qa := Analyze(tt.query, nil)
		if qa.PrimaryDomain != tt.domain {
			t.Errorf("Analyze(%q): got domain %q, want %q", tt.query, qa.PrimaryDomain, tt.domain)
		}
	}
}

func TestAnalyzeWeatherVerbForms(t *testing.T) {
	tests := []string{
		"Va-t-il pleuvoir demain ?",
		"Il pleut beaucoup en ce moment",
		"Est-ce qu'il pleuvra ce week-end ?",
	}
	for _, q := range tests {
		qa := Analyze(q, nil)
		if qa.PrimaryDomain != DomainWeather {
			t.Errorf("Analyze(%q): got domain %q, want %q", q, qa.PrimaryDomain, DomainWeather)
		}
	}
}

func TestAnalyzeMultiStep(t *testing.T) {
	qa := Analyze("Vérifie la météo puis donne-moi les doses autorisées", nil)
	if !qa.RequiresMultiStep {
		t.Error("'puis' connector should set RequiresMultiStep")
	}

	qa = Analyze("Quelle météo demain ?", nil)
	if qa.RequiresMultiStep {
		t.Error("single-step query should not set RequiresMultiStep")
	}
}

func TestAnalyzeUrgency(t *testing.T) {
	qa := Analyze("URGENT: gel annoncé sur mes vignes", nil)
	if qa.UrgencyLevel != UrgencyHigh {
		t.Errorf("got urgency %q, want high", qa.UrgencyLevel)
	}
}

func TestAnalyzeComplexityBounds(t *testing.T) {
	tests := []string{
		"",
		"météo",
		"pourquoi comment analyser comparer expliquer optimiser",
		"Comment optimiser ma stratégie de traitement et pourquoi ?",
	}
	for _, q := range tests {
		qa := Analyze(q, nil)
		if qa.ComplexityScore < 0 || qa.ComplexityScore > 1 {
			t.Errorf("Analyze(%q): complexity %f out of [0,1]", q, qa.ComplexityScore)
		}
	}
}

func TestAnalyzeContextDatabaseHint(t *testing.T) {
	qa := Analyze("Quelle météo demain ?", map[string]string{"farm_id": "f-42"})
	if !qa.RequiresDatabase {
		t.Error("farm_id context should force RequiresDatabase")
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	q := "Comment analyser le rendement de mes parcelles puis planifier les semis ?"
	first := Analyze(q, nil)
	for i := 0; i < 5; i++ {
		if got := Analyze(q, nil); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
