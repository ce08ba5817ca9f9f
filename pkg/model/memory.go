package model

import (
	"encoding/json"
	"strings"
	"time"
)

// NamespacePath is an ordered sequence of segments that defines an
// isolation boundary in the memory store. Records under one path are
// invisible to operations scoped to a different path.
type NamespacePath []string

// Namespace builds a NamespacePath from segments.
func Namespace(segments ...string) NamespacePath {
	return NamespacePath(segments)
}

// String joins the path with "/" for map keys and document IDs.
func (p NamespacePath) String() string {
	return strings.Join(p, "/")
}

// Child returns a new path extended with the given segments.
func (p NamespacePath) Child(segments ...string) NamespacePath {
	child := make(NamespacePath, 0, len(p)+len(segments))
	child = append(child, p...)
	child = append(child, segments...)
	return child
}

// Equal reports whether two paths have identical segments.
func (p NamespacePath) Equal(other NamespacePath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Reserved namespace segments.
const (
	SegmentUsers        = "users"
	SegmentShared       = "shared"
	SegmentRoles        = "roles"
	SegmentInstructions = "instructions"
	SegmentPreferences  = "preferences"
	SegmentThreads      = "threads"
	SegmentHistory      = "history"
)

// UserScope returns the top-level private scope for a user.
func UserScope(userID string) NamespacePath {
	return Namespace(SegmentUsers, userID)
}

// SharedScope returns the per-user scope readable and writable by every
// role operating for that user.
func SharedScope(userID string) NamespacePath {
	return UserScope(userID).Child(SegmentShared)
}

// RoleScope returns the private scope of one role for one user.
func RoleScope(userID string, role Role) NamespacePath {
	return UserScope(userID).Child(SegmentRoles, string(role))
}

// InstructionScope returns the reserved scope holding AgentInstructions
// records, keyed by role name.
func InstructionScope(userID string) NamespacePath {
	return UserScope(userID).Child(SegmentInstructions)
}

// PreferenceScope returns the reserved scope holding Preference records.
func PreferenceScope(userID string) NamespacePath {
	return UserScope(userID).Child(SegmentPreferences)
}

// ThreadScope returns the scope holding one thread's conversation records.
func ThreadScope(userID, threadID string) NamespacePath {
	return UserScope(userID).Child(SegmentThreads, threadID)
}

// HistoryScope returns the global-per-user conversation history scope.
func HistoryScope(userID string) NamespacePath {
	return UserScope(userID).Child(SegmentHistory)
}

// MemoryRecord is one stored (namespace, key, value) tuple. Writing an
// existing key overwrites the prior value.
type MemoryRecord struct {
	Namespace NamespacePath `json:"namespace" firestore:"namespace"`
	Key       string        `json:"key" firestore:"key"`
	Value     string        `json:"value" firestore:"value"`
	UpdatedAt time.Time     `json:"updated_at" firestore:"updated_at"`
}

// ValueJSON unmarshals the record value into v for records holding a
// structured payload.
func (r *MemoryRecord) ValueJSON(v any) error {
	return json.Unmarshal([]byte(r.Value), v)
}
