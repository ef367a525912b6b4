package decisiontree

import (
	"strings"

	"github.com/terrava/agrocore/internal/analysis"
	"github.com/terrava/agrocore/internal/route"
)

// baseProcessingSeconds anchors the processing-time estimate before complexity
// and route-type scaling.
const baseProcessingSeconds = 2.0

// leafDestinations maps tree leaves to concrete destinations. Unknown leaves
// fall back to the general agent.
var leafDestinations = map[string]route.Destination{
	leafEmergency:          route.EmergencyAgent,
	leafWeatherAdvisor:     route.WeatherAgent,
	leafRegulatoryAdvisor:  route.RegulatoryAgent,
	leafFarmDataAdvisor:    route.FarmDataAgent,
	leafGeneral:            route.GeneralAgent,
	leafConsensusWorkflow:  route.ConsensusWorkflow,
	leafWeatherWorkflow:    route.WeatherWorkflow,
	leafRegulatoryWorkflow: route.RegulatoryWorkflow,
	leafFarmDataWorkflow:   route.FarmDataWorkflow,
}

// validate turns a reached leaf into a concrete routing decision: destination
// lookup, processing-time estimate, and ordered fallback derivation.
func validate(leaf string, qa analysis.QueryAnalysis, confidence float64, path []string) route.Decision {
	dest, ok := leafDestinations[leaf]
	if !ok {
		dest = route.GeneralAgent
	}

	multiplier := 1.0
	if dest.IsWorkflow() {
		multiplier = 2.5
	}
	estimated := baseProcessingSeconds * (1 + qa.ComplexityScore) * multiplier

	return route.Decision{
		PrimaryRoute:      dest,
		Confidence:        confidence,
		Reasoning:         "decision path: " + pathString(path),
		FallbackRoutes:    fallbacks(dest),
		ComplexityScore:   qa.ComplexityScore,
		RequiresMultiStep: qa.RequiresMultiStep,
		EstimatedSeconds:  estimated,
	}
}

// fallbacks derives up to three ordered fallback routes by stripping
// qualifiers from the primary destination, always ending with the general
// agent when the primary is not itself general.
func fallbacks(primary route.Destination) []route.Destination {
	var out []route.Destination
	seen := map[route.Destination]bool{primary: true}

	add := func(d route.Destination) {
		if len(out) < 3 && d.Valid() && !seen[d] {
			out = append(out, d)
			seen[d] = true
		}
	}

	name := string(primary)
	if strings.HasSuffix(name, "_workflow") {
		add(route.Destination(strings.TrimSuffix(name, "_workflow") + "_agent"))
	}
	if strings.HasPrefix(name, "advanced_") {
		add(route.Destination(strings.TrimPrefix(name, "advanced_")))
	}
	add(route.GeneralAgent)
	return out
}
