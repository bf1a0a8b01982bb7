package domain

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestScopeMode_Allows(t *testing.T) {
	base := mustURL(t, "https://docs.example.com/docs/guide")

	tests := []struct {
		scope     ScopeMode
		candidate string
		want      bool
	}{
		{ScopeSubpages, "https://docs.example.com/docs/api", true},
		{ScopeSubpages, "https://docs.example.com/blog/x", false},
		{ScopeSubpages, "https://other.example.com/docs/x", false},
		{ScopeHostname, "https://docs.example.com/anything", true},
		{ScopeHostname, "https://www.example.com/anything", false},
		{ScopeDomain, "https://www.example.com/anything", true},
		{ScopeDomain, "https://example.org/anything", false},
		{ScopeAny, "https://anywhere.net/x", true},
	}
	for _, tt := range tests {
		got := tt.scope.Allows(base, mustURL(t, tt.candidate))
		assert.Equal(t, tt.want, got, "%s %s", tt.scope, tt.candidate)
	}
}

func TestScraperOptions_Validate(t *testing.T) {
	valid := ScraperOptions{URL: "https://x/", Library: "lib", Scope: ScopeSubpages}
	require.NoError(t, valid.Validate())

	missing := ScraperOptions{Library: "lib"}
	assert.ErrorIs(t, missing.Validate(), ErrInvalidInput)

	badScope := ScraperOptions{URL: "https://x/", Library: "lib", Scope: "galaxy"}
	assert.ErrorIs(t, badScope.Validate(), ErrInvalidInput)
}

func TestJobStatus_Transitions(t *testing.T) {
	assert.True(t, JobQueued.CanTransition(JobRunning))
	assert.True(t, JobQueued.CanTransition(JobCancelled))
	assert.True(t, JobRunning.CanTransition(JobCompleted))
	assert.True(t, JobRunning.CanTransition(JobFailed))
	assert.False(t, JobCompleted.CanTransition(JobRunning))
	assert.False(t, JobQueued.CanTransition(JobCompleted))

	assert.True(t, JobCancelled.IsTerminal())
	assert.False(t, JobRunning.IsTerminal())
}
