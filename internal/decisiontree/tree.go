// Package decisiontree is the deterministic, explainable router. It walks a
// named-node tree over the query analysis and emits a routing decision whose
// reasoning is the exact path taken.
package decisiontree

import (
	"strings"

	"github.com/terrava/agrocore/internal/analysis"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

// maxDepth bounds traversal so a miswired tree (cycles, dangling children)
// still terminates.
const maxDepth = 10

// Preferences are optional caller hints consulted by condition evaluators.
type Preferences struct {
	AgentPreference string
	Pattern         string
}

// Condition evaluates a branch node against the analysis and returns the
// outcome label used to pick the child.
type Condition func(qa analysis.QueryAnalysis, prefs Preferences) string

// Node is one tree node. Leaf names a terminal advisor when non-empty;
// otherwise Condition names the evaluator and Children maps its outcomes to
// child node names.
type Node struct {
	Name      string
	Leaf      string
	Condition string
	Children  map[string]string
}

// Router walks the tree from "root" to a leaf. The node and condition tables
// are built once and read-only afterwards, shared safely across runs.
type Router struct {
	nodes      map[string]*Node
	conditions map[string]Condition
	logger     *zap.Logger
}

// New builds the default advisory routing tree.
func New(logger *zap.Logger) *Router {
	return NewWithTree(defaultNodes(), defaultConditions(), logger)
}

// NewWithTree builds a Router over a custom node/condition set. Used by the
// default constructor and by tests exercising adversarial trees.
func NewWithTree(nodes map[string]*Node, conditions map[string]Condition, logger *zap.Logger) *Router {
	return &Router{nodes: nodes, conditions: conditions, logger: logger}
}

// Route traverses the tree and validates the reached leaf into a decision.
func (r *Router) Route(qa analysis.QueryAnalysis, prefs Preferences) route.Decision {
	leaf, path := r.traverse(qa, prefs)

	confidence := 0.9 - 0.1*float64(len(path))
	if confidence < 0.5 {
		confidence = 0.5
	}

	decision := validate(leaf, qa, confidence, path)
	r.logger.Debug("tree routing decision",
		zap.String("leaf", leaf),
		zap.String("route", string(decision.PrimaryRoute)),
		zap.Float64("confidence", decision.Confidence),
		zap.Strings("path", path))
	return decision
}

// traverse walks from root until a leaf or the depth bound. On any anomaly
// (unknown node, unknown condition, unmapped outcome, depth exhausted) it
// lands on the safe general leaf with the partial path preserved.
func (r *Router) traverse(qa analysis.QueryAnalysis, prefs Preferences) (string, []string) {
	var path []string
	current := "root"

	for depth := 0; depth < maxDepth; depth++ {
		node, ok := r.nodes[current]
		if !ok {
			r.logger.Warn("tree references unknown node", zap.String("node", current))
			return leafGeneral, path
		}
		path = append(path, node.Name)

		if node.Leaf != "" {
			return node.Leaf, path
		}

		cond, ok := r.conditions[node.Condition]
		if !ok {
			r.logger.Warn("tree references unknown condition",
				zap.String("node", current), zap.String("condition", node.Condition))
			return leafGeneral, path
		}

		outcome := cond(qa, prefs)
		next, ok := node.Children[outcome]
		if !ok {
			// Fall through to the default edge when the outcome is unmapped.
			next, ok = node.Children["default"]
			if !ok {
				return leafGeneral, path
			}
		}
		current = next
	}

	r.logger.Warn("tree traversal hit depth bound", zap.Strings("path", path))
	return leafGeneral, path
}

// Leaf identifiers.
const (
	leafEmergency          = "emergency"
	leafWeatherAdvisor     = "weather_advisor"
	leafRegulatoryAdvisor  = "regulatory_advisor"
	leafFarmDataAdvisor    = "farm_data_advisor"
	leafGeneral            = "general_advisor"
	leafConsensusWorkflow  = "consensus_workflow"
	leafWeatherWorkflow    = "weather_workflow"
	leafRegulatoryWorkflow = "regulatory_workflow"
	leafFarmDataWorkflow   = "farm_data_workflow"
)

func defaultNodes() map[string]*Node {
	return map[string]*Node{
		"root": {
			Name:      "root",
			Condition: "urgency",
			Children:  map[string]string{"high": "emergency_leaf", "default": "complexity_check"},
		},
		"emergency_leaf": {Name: "emergency_leaf", Leaf: leafEmergency},
		"complexity_check": {
			Name:      "complexity_check",
			Condition: "complex",
			Children:  map[string]string{"true": "workflow_branch", "false": "domain_switch"},
		},
		"workflow_branch": {
			Name:      "workflow_branch",
			Condition: "multi_step",
			Children:  map[string]string{"true": "consensus_leaf", "false": "workflow_domain"},
		},
		"consensus_leaf": {Name: "consensus_leaf", Leaf: leafConsensusWorkflow},
		"workflow_domain": {
			Name:      "workflow_domain",
			Condition: "domain",
			Children: map[string]string{
				"weather":    "weather_wf_leaf",
				"regulatory": "regulatory_wf_leaf",
				"farm_data":  "farm_data_wf_leaf",
				"default":    "general_leaf",
			},
		},
		"weather_wf_leaf":    {Name: "weather_wf_leaf", Leaf: leafWeatherWorkflow},
		"regulatory_wf_leaf": {Name: "regulatory_wf_leaf", Leaf: leafRegulatoryWorkflow},
		"farm_data_wf_leaf":  {Name: "farm_data_wf_leaf", Leaf: leafFarmDataWorkflow},
		"domain_switch": {
			Name:      "domain_switch",
			Condition: "domain",
			Children: map[string]string{
				"weather":    "weather_leaf",
				"regulatory": "regulatory_leaf",
				"farm_data":  "farm_data_leaf",
				"default":    "external_check",
			},
		},
		"weather_leaf":    {Name: "weather_leaf", Leaf: leafWeatherAdvisor},
		"regulatory_leaf": {Name: "regulatory_leaf", Leaf: leafRegulatoryAdvisor},
		"farm_data_leaf":  {Name: "farm_data_leaf", Leaf: leafFarmDataAdvisor},
		"external_check": {
			Name:      "external_check",
			Condition: "external_data",
			Children:  map[string]string{"true": "weather_leaf", "false": "general_leaf"},
		},
		"general_leaf": {Name: "general_leaf", Leaf: leafGeneral},
	}
}

func defaultConditions() map[string]Condition {
	return map[string]Condition{
		"urgency": func(qa analysis.QueryAnalysis, _ Preferences) string {
			if qa.UrgencyLevel == analysis.UrgencyHigh {
				return "high"
			}
			return "default"
		},
		"complex": func(qa analysis.QueryAnalysis, _ Preferences) string {
			if qa.ComplexityScore > 0.3 || qa.RequiresMultiStep {
				return "true"
			}
			return "false"
		},
		"multi_step": func(qa analysis.QueryAnalysis, _ Preferences) string {
			if qa.RequiresMultiStep {
				return "true"
			}
			return "false"
		},
		"domain": func(qa analysis.QueryAnalysis, prefs Preferences) string {
			// Caller preference overrides the detected domain when valid.
			switch prefs.AgentPreference {
			case "weather", "regulatory", "farm_data":
				return prefs.AgentPreference
			}
			switch qa.PrimaryDomain {
			case analysis.DomainWeather:
				return "weather"
			case analysis.DomainRegulatory:
				return "regulatory"
			case analysis.DomainFarmData:
				return "farm_data"
			}
			return "default"
		},
		"external_data": func(qa analysis.QueryAnalysis, _ Preferences) string {
			if qa.RequiresExternal {
				return "true"
			}
			return "false"
		},
	}
}

func pathString(path []string) string {
	return strings.Join(path, " > ")
}
