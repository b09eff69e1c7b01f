package session

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ExportConfig is populated when the user asks for the results to be written to disk.
type ExportConfig struct {
	Format  string `json:"format"`
	Dir     string `json:"dir"`
	Name    string `json:"name"`
	CodeExt string `json:"code_ext"`
}

// State is the shared context threaded through every capability of a session.
// Every field is optional: the zero value means "not produced yet", never an error.
type State struct {
	SessionID      string `json:"session_id"`
	AuditSessionID int64  `json:"audit_session_id,omitempty"`

	Query      string `json:"query"`
	IsFollowup bool   `json:"is_followup"`

	Plan            *Plan    `json:"plan,omitempty"`
	CurrentStep     *Step    `json:"-"`
	ResearchContext string   `json:"research_context,omitempty"`
	SearchQueries   []string `json:"search_queries,omitempty"`

	ResearchResults   []TaskResult     `json:"research_results,omitempty"`
	CombinedResearch  string           `json:"combined_research,omitempty"`
	Sources           SourceSet        `json:"sources,omitempty"`
	ResearchDetails   []ResearchDetail `json:"research_details,omitempty"`
	FormattedResearch string           `json:"formatted_research,omitempty"`
	SwarmDisabled     bool             `json:"swarm_disabled,omitempty"`
	DeepScrape        bool             `json:"deep_scrape,omitempty"`

	NeedsCode      bool   `json:"needs_code,omitempty"`
	Answer         string `json:"answer,omitempty"`
	FinalAnswer    string `json:"final_answer,omitempty"`
	Approved       bool   `json:"approved,omitempty"`
	ReviewFeedback string `json:"review_feedback,omitempty"`

	GeneratedCode       string      `json:"generated_code,omitempty"`
	CodeFeedback        string      `json:"code_feedback,omitempty"`
	CurrentCode         string      `json:"current_code,omitempty"`
	CodeHistory         CodeHistory `json:"code_history"`
	RunOutput           string      `json:"run_output,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	ExecutionSuccessful bool        `json:"execution_successful,omitempty"`
	PatchOutput         string      `json:"patch_output,omitempty"`
	FeatureOutput       string      `json:"feature_output,omitempty"`
	CodeCritique        string      `json:"code_critique,omitempty"`

	ProjectReport string        `json:"project_report,omitempty"`
	Export        *ExportConfig `json:"export,omitempty"`

	ChainOfThought    bool   `json:"chain_of_thought,omitempty"`
	Debate            bool   `json:"debate,omitempty"`
	InternalMonologue string `json:"internal_monologue,omitempty"`
	Reasoning         string `json:"reasoning,omitempty"`

	ActionIntent string `json:"action_intent,omitempty"`
	ActionDetail string `json:"action_detail,omitempty"`

	// Errors maps a capability name to the diagnostic recorded when it failed.
	Errors map[string]string `json:"errors,omitempty"`
}

// New creates an empty state with a fresh session id.
func New() *State {
	return &State{
		SessionID: uuid.NewString(),
		Sources:   SourceSet{},
	}
}

// RecordError stores a capability failure as a diagnostic string and returns it.
func (s *State) RecordError(capability string, err error) string {
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	msg := "(" + capability + " unavailable due to error: " + err.Error() + ")"
	s.Errors[capability] = msg
	return msg
}

// AddSources merges urls into the session's source set.
func (s *State) AddSources(urls ...string) {
	if s.Sources == nil {
		s.Sources = SourceSet{}
	}
	s.Sources.Add(urls...)
}

// PushCode records a new code version and makes it current.
func (s *State) PushCode(code string) {
	s.CurrentCode = code
	s.CodeHistory.Push(code)
}

func (s *State) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not marshal session state")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "could not write session state to %s", path)
	}
	return nil
}

func Load(path string) (*State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read session state from %s", path)
	}
	s := &State{}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, errors.Wrapf(err, "could not parse session state %s", path)
	}
	if s.Sources == nil {
		s.Sources = SourceSet{}
	}
	return s, nil
}
