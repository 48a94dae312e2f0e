package models

import (
	"encoding/json"
)

// Kind identifies the record variant stored in a family collection.
type Kind string

const (
	KindUserMessage      Kind = "user_message"
	KindAssistantMessage Kind = "assistant_message"
	KindToolUse          Kind = "tool_use"
	KindDecision         Kind = "decision"
	KindConvention       Kind = "convention"
	KindLearning         Kind = "learning"
	KindArtifact         Kind = "artifact"
	// KindLegacy is the opaque migration variant. Payloads are accepted
	// as-is but only after passing the write-boundary validation that
	// applies to every record (non-empty content, valid session).
	KindLegacy Kind = "legacy"
)

var ValidKinds = map[Kind]bool{
	KindUserMessage:      true,
	KindAssistantMessage: true,
	KindToolUse:          true,
	KindDecision:         true,
	KindConvention:       true,
	KindLearning:         true,
	KindArtifact:         true,
	KindLegacy:           true,
}

func (k Kind) IsValid() bool {
	return ValidKinds[k]
}

// Family groups record kinds into the two persisted collections.
type Family string

const (
	FamilyConversation Family = "conversation"
	FamilyKnowledge    Family = "knowledge"
)

// Family returns which collection a kind belongs to.
func (k Kind) Family() Family {
	switch k {
	case KindUserMessage, KindAssistantMessage, KindToolUse:
		return FamilyConversation
	default:
		return FamilyKnowledge
	}
}

// Record is the tagged-variant envelope persisted in the store. Common
// fields live on the envelope; kind-specific fields are carried in Payload
// and unpacked through the typed accessors below.
type Record struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	SessionID   string          `json:"sessionId"`
	Turn        int             `json:"turn,omitempty"`
	Topics      []string        `json:"topics,omitempty"`
	Content     string          `json:"content"`
	ContentHash string          `json:"contentHash"`
	Confidence  float64         `json:"confidence,omitempty"`
	// SourceSessions lists every session that produced or reinforced this
	// record. Always non-empty for Learning records.
	SourceSessions []string        `json:"sourceSessions,omitempty"`
	LastVerified   *int64          `json:"lastVerified,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	AccessCount    int             `json:"accessCount"`
	TokenCount     int             `json:"tokenCount"`
	// Seq is the insertion order within the family collection (SQLite
	// rowid). It is the final tie-break during context assembly.
	Seq       int64 `json:"seq"`
	CreatedAt int64 `json:"createdAt"`
}

// AssistantMessagePayload carries response accounting for assistant turns.
type AssistantMessagePayload struct {
	TokensIn  int    `json:"tokensIn"`
	TokensOut int    `json:"tokensOut"`
	Model     string `json:"model,omitempty"`
}

// ToolUsePayload records a single tool execution.
type ToolUsePayload struct {
	ToolName  string `json:"toolName"`
	Input     string `json:"input,omitempty"`
	Response  string `json:"response,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	Success   bool   `json:"success"`
}

// DecisionPayload carries the structured parts of an architectural choice.
// The envelope Content holds the decision text itself.
type DecisionPayload struct {
	Question     string   `json:"question,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	DecidedBy    string   `json:"decidedBy,omitempty"`
}

// LearningPayload classifies a cross-session insight. The envelope Content
// holds the pattern text; SourceSessions holds learned_from.
type LearningPayload struct {
	Category string `json:"category,omitempty"`
}

// ArtifactPayload describes a produced file/function/class. The envelope
// Content holds the description.
type ArtifactPayload struct {
	ArtifactType string `json:"artifactType"`
	Path         string `json:"path"`
}

// DecodePayload unmarshals the envelope payload into dst.
func (r *Record) DecodePayload(dst any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, dst)
}

// EncodePayload marshals v and attaches it to the envelope.
func (r *Record) EncodePayload(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Payload = b
	return nil
}
