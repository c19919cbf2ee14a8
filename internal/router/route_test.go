package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberbook/config"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"#/", "/"},
		{"chapters", "/chapters"},
		{"/chapters/", "/chapters"},
		{"//chapters//xss/", "/chapters/xss"},
		{"#/notes", "/notes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestSplitTarget(t *testing.T) {
	path, q := SplitTarget("#/search?q=sql+injection&tag=a&tag=b")
	assert.Equal(t, "/search", path)
	assert.Equal(t, "sql injection", q.Get("q"))
	assert.Equal(t, []string{"a", "b"}, q["tag"])

	path, q = SplitTarget("/chapters/xss/")
	assert.Equal(t, "/chapters/xss", path)
	assert.Empty(t, q)
}

func TestRouteMatching(t *testing.T) {
	r := New(config.RouterConfig{}, nil, nil)
	noop := HandlerFunc(func(*Context) (Output, error) { return Empty(), nil })
	require.NoError(t, r.Register("/", noop, RouteOptions{}))
	require.NoError(t, r.Register("/chapters/:slug", noop, RouteOptions{}))
	require.NoError(t, r.Register("/chapters/:slug/notes/:id", noop, RouteOptions{}))
	require.NoError(t, r.Register("/chapters/index", noop, RouteOptions{}))

	tests := []struct {
		path   string
		route  string
		params map[string]string
	}{
		{"/", "/", map[string]string{}},
		{"/chapters/owasp-top-10", "/chapters/:slug", map[string]string{"slug": "owasp-top-10"}},
		{"/chapters/inje%C3%A7%C3%A3o", "/chapters/:slug", map[string]string{"slug": "injeção"}},
		{"/chapters/a/notes/7", "/chapters/:slug/notes/:id", map[string]string{"slug": "a", "id": "7"}},
		// first registered wins
		{"/chapters/index", "/chapters/:slug", map[string]string{"slug": "index"}},
		{"/chapters", "", nil},
		{"/chapters/a/notes", "", nil},
		{"/pages/a", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rt, params := r.lookup(tt.path)
			if tt.route == "" {
				assert.Nil(t, rt)
				return
			}
			require.NotNil(t, rt)
			assert.Equal(t, tt.route, rt.Path)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestRegister_RejectsDuplicateShape(t *testing.T) {
	r := New(config.RouterConfig{}, nil, nil)
	noop := HandlerFunc(func(*Context) (Output, error) { return Empty(), nil })

	require.NoError(t, r.Register("/chapters/:slug", noop, RouteOptions{}))
	err := r.Register("/chapters/:id/", noop, RouteOptions{})
	assert.ErrorIs(t, err, ErrDuplicateRoute)

	require.NoError(t, r.Register("/chapters/:slug/edit", noop, RouteOptions{}))
	assert.Error(t, r.Register("/x", nil, RouteOptions{}))
	assert.Len(t, r.Routes(), 2)
}
