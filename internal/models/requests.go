package models

// AddUserMessageRequest is the payload for POST /records/user-messages.
type AddUserMessageRequest struct {
	SessionID string   `json:"sessionId"`
	Content   string   `json:"content"`
	Turn      int      `json:"turn"`
	Topics    []string `json:"topics,omitempty"`
}

// AddAssistantMessageRequest is the payload for POST /records/assistant-messages.
type AddAssistantMessageRequest struct {
	SessionID string   `json:"sessionId"`
	Content   string   `json:"content"`
	Turn      int      `json:"turn"`
	TokensIn  int      `json:"tokensIn"`
	TokensOut int      `json:"tokensOut"`
	Model     string   `json:"model,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

// AddToolUseRequest is the payload for POST /records/tool-uses.
type AddToolUseRequest struct {
	SessionID string `json:"sessionId"`
	ToolName  string `json:"toolName"`
	Input     string `json:"input,omitempty"`
	Response  string `json:"response,omitempty"`
	Turn      int    `json:"turn"`
	LatencyMS int64  `json:"latencyMs"`
	Success   bool   `json:"success"`
}

// AddDecisionRequest is the payload for POST /records/decisions.
type AddDecisionRequest struct {
	SessionID    string   `json:"sessionId"`
	Question     string   `json:"question,omitempty"`
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	DecidedBy    string   `json:"decidedBy,omitempty"`
	Topics       []string `json:"topics,omitempty"`
}

// AddConventionRequest is the payload for POST /records/conventions.
type AddConventionRequest struct {
	SessionID  string   `json:"sessionId"`
	Content    string   `json:"content"`
	Topics     []string `json:"topics,omitempty"`
	Confidence float64  `json:"confidence"`
}

// AddLearningRequest is the payload for POST /records/learnings.
type AddLearningRequest struct {
	SessionID   string   `json:"sessionId"`
	Pattern     string   `json:"pattern"`
	Category    string   `json:"category,omitempty"`
	Confidence  float64  `json:"confidence"`
	LearnedFrom []string `json:"learnedFrom"`
}

// AddArtifactRequest is the payload for POST /records/artifacts.
type AddArtifactRequest struct {
	SessionID    string   `json:"sessionId"`
	ArtifactType string   `json:"artifactType"`
	Path         string   `json:"path"`
	Description  string   `json:"description"`
	Topics       []string `json:"topics,omitempty"`
}

// AddResponse is returned by every add endpoint.
type AddResponse struct {
	ID string `json:"id"`
	// Suppressed is true when the record was an exact duplicate and the
	// existing record's id is returned instead.
	Suppressed bool `json:"suppressed,omitempty"`
	// Merged is true when a near-duplicate knowledge record was folded
	// into an existing one.
	Merged          bool    `json:"merged,omitempty"`
	MergeSimilarity float64 `json:"mergeSimilarity,omitempty"`
}

// SearchRequest is the payload for POST /search.
type SearchRequest struct {
	Query           string  `json:"query"`
	TypeFilter      []Kind  `json:"typeFilter,omitempty"`
	ConfidenceFloor float64 `json:"confidenceFloor,omitempty"`
	Limit           int     `json:"limit"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Type       Kind    `json:"type"`
	Similarity float64 `json:"similarity"`
	// SimilarityAvailable is false when the vector index was unavailable
	// and the result was ranked by keyword match instead.
	SimilarityAvailable bool              `json:"similarityAvailable"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is returned from POST /search.
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded,omitempty"`
}

// BuildContextRequest is the payload for POST /context.
type BuildContextRequest struct {
	Query       string   `json:"query"`
	Agent       string   `json:"agent"`
	Topics      []string `json:"topics,omitempty"`
	TokenBudget int      `json:"tokenBudget"`
}

// BuildContextResponse is returned from POST /context.
type BuildContextResponse struct {
	AssembledText string   `json:"assembledText"`
	RecordIDs     []string `json:"recordIds"`
	TokensUsed    int      `json:"tokensUsed"`
}

// StatsResponse is returned from GET /stats.
type StatsResponse struct {
	CountsByType     map[string]int `json:"countsByType"`
	TotalTokens      int64          `json:"totalTokens"`
	SuppressionCount int64          `json:"suppressionCount"`
	MergeCount       int64          `json:"mergeCount"`
}

// PruneRequest is the payload for POST /records/prune. Pruning is always
// explicit and caller-driven; nothing is deleted implicitly.
type PruneRequest struct {
	MaxAgeDays     int     `json:"maxAgeDays,omitempty"`
	QualityFloor   float64 `json:"qualityFloor,omitempty"`
	ConversationOK bool    `json:"conversation"`
	KnowledgeOK    bool    `json:"knowledge"`
}

// PruneResponse is returned from POST /records/prune.
type PruneResponse struct {
	Deleted int `json:"deleted"`
}

// DecayRequest is the payload for POST /records/decay.
type DecayRequest struct {
	// Factor multiplies the confidence of every knowledge record whose
	// last verification is older than MinAgeDays. Must be in (0, 1].
	Factor     float64 `json:"factor"`
	MinAgeDays int     `json:"minAgeDays"`
}

// DecayResponse is returned from POST /records/decay.
type DecayResponse struct {
	Updated int `json:"updated"`
}

// HookRequest is a single lifecycle callback from the host runtime.
type HookRequest struct {
	SessionID string `json:"sessionId"`
	Turn      int    `json:"turn"`
	// Event is "user_prompt", "assistant_response", "tool_use", or
	// "session_end".
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	ToolName string `json:"toolName,omitempty"`
	Input    string `json:"input,omitempty"`
	Response string `json:"response,omitempty"`
	Success  bool   `json:"success"`
}

// HookAck is the structured acknowledgement returned for every hook call.
// Continue is always true: stopping is the calling policy layer's decision,
// never the core's. Internal failures ride along as diagnostic metadata.
type HookAck struct {
	Continue bool   `json:"continue"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}
