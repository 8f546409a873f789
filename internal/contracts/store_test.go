package contracts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/econradar/autodiscovery/internal/discovery"
)

const sampleYAML = `
sources:
  - key: indec-ipc
    start_urls:
      - https://www.indec.gob.ar/indec/web/Nivel4-Tema-3-5-31
    scope:
      allow_domains: [indec.gob.ar]
      allow_paths_any: [/indec/web, /ftp/cuadros]
      max_depth: 2
      max_candidates: 10
    find:
      link_text_any: [serie, descargar]
    match:
      kind: fixed_filename
      filename: sh_ipc_aperturas.xls
    select:
      prefer_ext: [.xls, .xlsx]
    expect:
      mime_any: [application/vnd.ms-excel]
      min_size_kb: 100
    versioning: date_last_modified
    mirror: true
  - key: bcra-series
    source_type: api
    start_urls:
      - https://api.bcra.gob.ar/estadisticas/v3.0/monetarias
    versioning: none
    mirror: false
`

func writeSample(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ParsesContracts(t *testing.T) {
	t.Parallel()

	store, err := Load(writeSample(t, sampleYAML))
	require.NoError(t, err)

	ipc, err := store.Get("indec-ipc")
	require.NoError(t, err)
	require.Equal(t, discovery.MatchFixedFilename, ipc.Match.Kind)
	require.Equal(t, "sh_ipc_aperturas.xls", ipc.Match.Filename)
	require.Equal(t, []string{"indec.gob.ar"}, ipc.Scope.AllowDomains)
	require.Equal(t, 2, ipc.Scope.MaxDepth)
	require.Equal(t, 100.0, ipc.Expect.MinSizeKB)
	require.True(t, ipc.Mirror)

	api, err := store.Get("bcra-series")
	require.NoError(t, err)
	require.Equal(t, discovery.SourceAPI, api.SourceType)
	require.False(t, api.Mirror)
}

func TestLoad_PreservesFileOrder(t *testing.T) {
	t.Parallel()

	store, err := Load(writeSample(t, sampleYAML))
	require.NoError(t, err)

	all := store.All()
	require.Len(t, all, 2)
	require.Equal(t, "indec-ipc", all[0].Key)
	require.Equal(t, "bcra-series", all[1].Key)

	require.Equal(t, []string{"bcra-series", "indec-ipc"}, store.Keys())
}

func TestGet_UnknownKey(t *testing.T) {
	t.Parallel()

	store, err := Load(writeSample(t, sampleYAML))
	require.NoError(t, err)

	_, err = store.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParse_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "empty sources",
			body: "sources: []",
			want: "no sources",
		},
		{
			name: "missing key",
			body: `
sources:
  - start_urls: [https://h/]
    scope: {allow_domains: [h]}
    match: {kind: fixed_filename, filename: a.xls}`,
			want: "key is required",
		},
		{
			name: "duplicate key",
			body: `
sources:
  - key: dup
    start_urls: [https://h/]
    scope: {allow_domains: [h]}
    match: {kind: fixed_filename, filename: a.xls}
  - key: dup
    start_urls: [https://h/]
    scope: {allow_domains: [h]}
    match: {kind: fixed_filename, filename: a.xls}`,
			want: "duplicate contract key",
		},
		{
			name: "non-http start url",
			body: `
sources:
  - key: bad
    start_urls: [ftp://h/file]
    scope: {allow_domains: [h]}
    match: {kind: fixed_filename, filename: a.xls}`,
			want: "not http(s)",
		},
		{
			name: "crawl source without domains",
			body: `
sources:
  - key: bad
    start_urls: [https://h/]
    match: {kind: fixed_filename, filename: a.xls}`,
			want: "allow_domains",
		},
		{
			name: "unknown match kind",
			body: `
sources:
  - key: bad
    start_urls: [https://h/]
    scope: {allow_domains: [h]}
    match: {kind: telepathy}`,
			want: "unknown match kind",
		},
		{
			name: "date pattern without pattern",
			body: `
sources:
  - key: bad
    start_urls: [https://h/]
    scope: {allow_domains: [h]}
    match: {kind: date_pattern}`,
			want: "needs pattern",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.body))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
