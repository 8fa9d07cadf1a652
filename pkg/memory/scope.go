package memory

import "strings"

// Scope is the partition key bounding which memories can interact.
// At least one component must be set. Candidate retrieval, reconciliation,
// and search all operate within a single scope.
type Scope struct {
	// UserID identifies the end user the memories belong to.
	UserID string `json:"user_id,omitempty"`

	// AgentID optionally narrows memories to a single agent.
	AgentID string `json:"agent_id,omitempty"`

	// RunID optionally narrows memories to a single session or run.
	RunID string `json:"run_id,omitempty"`
}

// IsZero reports whether no scope component is set.
func (s Scope) IsZero() bool {
	return s.UserID == "" && s.AgentID == "" && s.RunID == ""
}

// Key returns a stable string form of the scope, used as the serialization
// key for the per-scope reconciliation gate and for idempotency tokens.
// Component order is fixed so equal scopes always produce equal keys.
func (s Scope) Key() string {
	var b strings.Builder
	b.WriteString("user=")
	b.WriteString(s.UserID)
	b.WriteString("|agent=")
	b.WriteString(s.AgentID)
	b.WriteString("|run=")
	b.WriteString(s.RunID)
	return b.String()
}
