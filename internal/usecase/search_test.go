package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberbook/internal/search"
)

func TestSearchUseCase(t *testing.T) {
	engine := newEngine()
	require.NoError(t, engine.IndexDocument("sqli", "SQL injection with union select", map[string]any{
		"title": "SQL Injection", "category": "owasp", "path": "/chapters/sqli.md",
	}))
	require.NoError(t, engine.IndexDocument("xss", "script injection in the browser", map[string]any{"title": "XSS"}))

	uc := NewSearchUseCase(engine, 0)
	resp := uc.Search("injection", search.WithLimit(1))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.NotEmpty(t, resp.Results[0].Snippet)

	resp = uc.Search("union")
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "sqli", r.Slug)
	assert.Equal(t, "SQL Injection", r.Title)
	assert.Equal(t, "owasp", r.Category)
	assert.Equal(t, "/chapters/sqli.md", r.Path)

	strict := NewSearchUseCase(engine, 1000)
	assert.Empty(t, strict.Search("injection").Results)

	assert.Contains(t, uc.Suggest("inj", 5), "injection")
	assert.GreaterOrEqual(t, uc.Analytics().TotalQueries, 3)
}
