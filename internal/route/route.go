// Package route defines the closed set of routing destinations and the
// decision record both routers produce. Keeping the enum closed lets dispatch
// tables be checked for exhaustiveness instead of trusting free-form strings.
package route

// Destination identifies a handler a query can be routed to.
type Destination string

const (
	WeatherAgent    Destination = "weather_agent"
	RegulatoryAgent Destination = "regulatory_agent"
	FarmDataAgent   Destination = "farm_data_agent"
	GeneralAgent    Destination = "general_agent"
	EmergencyAgent  Destination = "emergency_agent"

	WeatherWorkflow    Destination = "weather_workflow"
	RegulatoryWorkflow Destination = "regulatory_workflow"
	FarmDataWorkflow   Destination = "farm_data_workflow"
	ConsensusWorkflow  Destination = "consensus_workflow"
)

// All lists every routable destination.
var All = []Destination{
	WeatherAgent, RegulatoryAgent, FarmDataAgent, GeneralAgent, EmergencyAgent,
	WeatherWorkflow, RegulatoryWorkflow, FarmDataWorkflow, ConsensusWorkflow,
}

// Agents lists the single-node destinations the classifier scores against.
var Agents = []Destination{
	WeatherAgent, RegulatoryAgent, FarmDataAgent, GeneralAgent,
}

// IsWorkflow reports whether the destination runs a multi-stage graph rather
// than a single handler.
func (d Destination) IsWorkflow() bool {
	switch d {
	case WeatherWorkflow, RegulatoryWorkflow, FarmDataWorkflow, ConsensusWorkflow:
		return true
	}
	return false
}

// Valid reports whether d is a known destination.
func (d Destination) Valid() bool {
	for _, known := range All {
		if d == known {
			return true
		}
	}
	return false
}

// Decision is the immutable outcome of routing one query. It is logged and
// handed to the executor, never mutated afterwards.
type Decision struct {
	PrimaryRoute      Destination   `json:"primary_route"`
	Confidence        float64       `json:"confidence"`
	Reasoning         string        `json:"reasoning"`
	FallbackRoutes    []Destination `json:"fallback_routes"`
	ComplexityScore   float64       `json:"complexity_score"`
	RequiresMultiStep bool          `json:"requires_multi_step"`
	EstimatedSeconds  float64       `json:"estimated_processing_time"`
}
