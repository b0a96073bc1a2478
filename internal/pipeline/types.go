package pipeline

// #region state
// State is a pipeline stage marker, logged on every transition.
type State string

const (
	StateReceived    State = "RECEIVED"
	StateClassified  State = "CLASSIFIED"
	StateDirect      State = "DIRECT"
	StateDecomposed  State = "DECOMPOSED"
	StateRetrieved   State = "RETRIEVED"
	StateReranked    State = "RERANKED"
	StateSynthesized State = "SYNTHESIZED"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// #endregion state

// #region outcome
// Outcome is the caller-visible kind of a final answer.
type Outcome string

const (
	OutcomeAnswered          Outcome = "answered"
	OutcomeFallbackNoContext Outcome = "fallback_no_context"
	OutcomeFallbackDenied    Outcome = "fallback_denied"
	OutcomeError             Outcome = "error"
)

// FinalAnswer is what the pipeline returns to its caller. Fallback and
// error texts are configured copy; internal error detail never appears
// here.
type FinalAnswer struct {
	Text    string
	Sources []string
	Outcome Outcome
}

// #endregion outcome

// #region config
// Config holds orchestrator toggles and user-facing fallback copy.
type Config struct {
	ClassifierEnabled bool
	DecomposerEnabled bool

	NoContextMessage string
	DeniedMessage    string
	ErrorMessage     string
}

// DefaultConfig enables every stage and sets neutral fallback copy.
func DefaultConfig() Config {
	return Config{
		ClassifierEnabled: true,
		DecomposerEnabled: true,
		NoContextMessage:  "I couldn't find relevant information in the knowledge base for that question.",
		DeniedMessage:     "I couldn't find information you have access to for that question.",
		ErrorMessage:      "Something went wrong while answering. Please try again.",
	}
}

// #endregion config
