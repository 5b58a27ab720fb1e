package research

// Status 流水线状态
type Status string

const (
	StatusPlanning     Status = "planning"
	StatusResearching  Status = "researching"
	StatusAnalyzing    Status = "analyzing"
	StatusValidating   Status = "validating"
	StatusSynthesizing Status = "synthesizing"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
)

// Validation is the Critic's verdict on the current analysis.
type Validation struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// State is the single research record threaded through all stages. It is
// passed by value between stages; Clone deep-copies the reference fields so
// a stage can safely derive its output without aliasing its input.
type State struct {
	// Query is the original user request. Immutable after creation.
	Query string `json:"query"`

	// SubQuestions is the ordered decomposition produced once by the Planner.
	SubQuestions []string `json:"sub_questions,omitempty"`

	// Findings maps each sub-question to its gathered text.
	Findings map[string]string `json:"findings,omitempty"`

	// Analysis is produced by the Analyst and may be regenerated on retry.
	Analysis string `json:"analysis,omitempty"`

	// Validation is the Critic's latest verdict, overwritten each attempt.
	Validation *Validation `json:"validation,omitempty"`

	// RetryCount is incremented each time the Critic rejects the analysis.
	RetryCount int `json:"retry_count"`

	// Rejections keeps every rejection reason for diagnostics.
	Rejections []string `json:"rejections,omitempty"`

	// Report is set only on successful completion.
	Report string `json:"report,omitempty"`

	// Status is the pipeline position this state is in.
	Status Status `json:"status"`
}

// NewState creates the initial state for a query.
func NewState(query string) State {
	return State{Query: query, Status: StatusPlanning}
}

// Clone returns a deep copy. Slices and maps are copied so mutations of the
// clone never leak into snapshots held by the transition history.
func (s State) Clone() State {
	out := s
	if s.SubQuestions != nil {
		out.SubQuestions = append([]string(nil), s.SubQuestions...)
	}
	if s.Findings != nil {
		out.Findings = make(map[string]string, len(s.Findings))
		for k, v := range s.Findings {
			out.Findings[k] = v
		}
	}
	if s.Rejections != nil {
		out.Rejections = append([]string(nil), s.Rejections...)
	}
	if s.Validation != nil {
		v := *s.Validation
		out.Validation = &v
	}
	return out
}
