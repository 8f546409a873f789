package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeGuard_DepthBudget(t *testing.T) {
	t.Parallel()

	guard := NewScopeGuard(Scope{MaxDepth: 2})
	require.True(t, guard.Allowed("https://example.com/a", 0))
	require.True(t, guard.Allowed("https://example.com/a", 2))
	require.False(t, guard.Allowed("https://example.com/a", 3))
}

func TestScopeGuard_DomainAllowList(t *testing.T) {
	t.Parallel()

	guard := NewScopeGuard(Scope{MaxDepth: 1, AllowDomains: []string{"bcra.gob.ar"}})

	require.True(t, guard.Allowed("https://bcra.gob.ar/Pdfs/x.html", 0))
	require.True(t, guard.Allowed("https://www.bcra.gob.ar/Pdfs/x.html", 0), "subdomains are in scope")
	require.False(t, guard.Allowed("https://evil.example.com/bcra.gob.ar", 0))
	require.False(t, guard.Allowed("https://notbcra.gob.ar.example.com/", 0))
}

func TestScopeGuard_PathAllowList(t *testing.T) {
	t.Parallel()

	guard := NewScopeGuard(Scope{
		MaxDepth:      1,
		AllowPathsAny: []string{"/PublicacionesEstadisticas/", "/Pdfs/"},
	})

	require.True(t, guard.Allowed("https://h/PublicacionesEstadisticas/series.htm", 0))
	require.True(t, guard.Allowed("https://h/site/Pdfs/file", 0), "fragment may appear anywhere in the path")
	require.False(t, guard.Allowed("https://h/Noticias/series.htm", 0))
}

func TestScopeGuard_EmptyListsAllowEverything(t *testing.T) {
	t.Parallel()

	guard := NewScopeGuard(Scope{MaxDepth: 1})
	require.True(t, guard.Allowed("https://anything.example.net/whatever", 1))
}

func TestScopeGuard_RejectsUnparsableURLs(t *testing.T) {
	t.Parallel()

	guard := NewScopeGuard(Scope{MaxDepth: 3})
	require.False(t, guard.Allowed("::not a url::", 0))
	require.False(t, guard.Allowed("/relative/only", 0))
}
