package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"exact", "security", "security", true},
		{"child", "security", "security/sql-injection", true},
		{"grandchild", "security", "security/sql-injection/blind", true},
		{"segment boundary respected", "security", "securityX", false},
		{"unrelated", "performance", "security/sql-injection", false},
		{"filter deeper than topic", "security/sql-injection", "security", false},
		{"deep filter exact", "security/sql-injection", "security/sql-injection", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.filter, tt.topic))
		})
	}
}

func TestMatchesAny(t *testing.T) {
	topics := []string{"security/sql-injection", "backend"}

	assert.True(t, MatchesAny([]string{"security"}, topics))
	assert.True(t, MatchesAny([]string{"performance", "backend"}, topics), "OR semantics")
	assert.False(t, MatchesAny([]string{"performance"}, topics))

	// No filter means match-all, even for untagged records.
	assert.True(t, MatchesAny(nil, topics))
	assert.True(t, MatchesAny(nil, nil))
	assert.False(t, MatchesAny([]string{"security"}, nil))
}
