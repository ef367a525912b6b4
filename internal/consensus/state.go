package consensus

import (
	"time"

	"github.com/google/uuid"
	"github.com/terrava/agrocore/internal/pipeline"
)

// HistoryEntry is one append-only audit record of a visited stage.
type HistoryEntry struct {
	Agent     string            `json:"agent"`
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// State extends the domain-pipeline state with the multi-expert fields. One
// consensus run owns exactly one State; ConversationID is the only field that
// correlates with longer-lived external conversation memory.
type State struct {
	pipeline.State

	CurrentAgent        string             `json:"current_agent"`
	ConversationID      string             `json:"conversation_id"`
	AgentResponses      map[string]string  `json:"agent_responses"`
	ConfidenceScores    map[string]float64 `json:"confidence_scores"`
	ConsensusReached    bool               `json:"consensus_reached"`
	FinalRecommendation string             `json:"final_recommendation"`
	History             []HistoryEntry     `json:"collaboration_history"`

	// panel is the resolved expert stage list for this run; laps counts
	// consensus-check retries.
	panel []string
	laps  int
}

// NewState creates the run state. An existing conversation id in the context
// is reused so external memory keeps correlating.
func NewState(query string, qctx map[string]string, panel []string) *State {
	s := &State{
		State:            *pipeline.NewState(query, qctx),
		AgentResponses:   make(map[string]string),
		ConfidenceScores: make(map[string]float64),
		panel:            panel,
	}
	if id := s.Context["conversation_id"]; id != "" {
		s.ConversationID = id
	} else {
		s.ConversationID = uuid.New().String()
	}
	return s
}

// Record appends one audit entry. History is append-only within a run.
func (s *State) Record(agent, action string, meta map[string]string) {
	s.History = append(s.History, HistoryEntry{
		Agent:     agent,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Metadata:  meta,
	})
}

func (s *State) inPanel(stage string) bool {
	for _, p := range s.panel {
		if p == stage {
			return true
		}
	}
	return false
}
