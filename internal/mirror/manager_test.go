package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/econradar/autodiscovery/internal/discovery"
)

type fakeProbe struct {
	status int
	body   io.Reader
	err    error
}

func (f *fakeProbe) Head(context.Context, string) (discovery.ProbeResult, error) {
	return discovery.ProbeResult{}, errors.New("not used")
}

func (f *fakeProbe) GetStream(context.Context, string) (discovery.ProbeResult, io.ReadCloser, error) {
	if f.err != nil {
		return discovery.ProbeResult{}, nil, f.err
	}
	return discovery.ProbeResult{StatusCode: f.status, Headers: http.Header{}}, io.NopCloser(f.body), nil
}

// brokenReader fails partway through the stream.
type brokenReader struct {
	prefix io.Reader
	done   bool
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if !b.done {
		n, err := b.prefix.Read(p)
		if err == io.EOF {
			b.done = true
			return n, nil
		}
		return n, err
	}
	return 0, errors.New("connection reset mid-transfer")
}

type fakeBlobs struct {
	objects map[string][]byte
	err     error
}

func (f *fakeBlobs) PutObject(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return "gs://test-bucket/" + key, nil
}

func newManager(t *testing.T, probe discovery.ProbeClient, blobs discovery.BlobStore) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	m, err := New(Config{Root: root, ObjectPrefix: "mirrors"}, probe, blobs, nil)
	require.NoError(t, err)
	return m, root
}

func TestMirror_WritesFileAtomicallyWithMatchingHash(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("cell,", 4096)
	m, root := newManager(t, &fakeProbe{status: 200, body: strings.NewReader(payload)}, nil)

	got, err := m.Mirror(context.Background(), "https://h/f/series.xlsm", "indec-ipc", "v2025-11-04", "series.xlsm")
	require.NoError(t, err)

	wantPath := filepath.Join(root, "indec-ipc", "v2025-11-04", "series.xlsm")
	require.Equal(t, wantPath, got.StoredPath)
	require.Equal(t, int64(len(payload)), got.Bytes)

	data, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	require.Equal(t, payload, string(data))

	sum := sha256.Sum256(data)
	require.Equal(t, hex.EncodeToString(sum[:]), got.SHA256, "hash covers exactly the stored bytes")
}

func TestMirror_OmitsVersionDirWhenUnversioned(t *testing.T) {
	t.Parallel()

	m, root := newManager(t, &fakeProbe{status: 200, body: strings.NewReader("{}")}, nil)

	got, err := m.Mirror(context.Background(), "https://h/api/latest.json", "bcra-series", "", "latest.json")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "bcra-series", "latest.json"), got.StoredPath)
}

func TestMirror_MidStreamFailureLeavesNoFile(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{status: 200, body: &brokenReader{prefix: strings.NewReader("partial")}}
	m, root := newManager(t, probe, nil)

	_, err := m.Mirror(context.Background(), "https://h/f/series.xlsm", "indec-ipc", "v2025-11-04", "series.xlsm")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "indec-ipc", "v2025-11-04", "series.xlsm"))
	require.True(t, os.IsNotExist(statErr), "no final file after a truncated transfer")

	entries, readErr := os.ReadDir(filepath.Join(root, "indec-ipc", "v2025-11-04"))
	require.NoError(t, readErr)
	require.Empty(t, entries, "temp file is cleaned up")
}

func TestMirror_NonSuccessStatusFails(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &fakeProbe{status: 503, body: strings.NewReader("busy")}, nil)

	_, err := m.Mirror(context.Background(), "https://h/f/series.xlsm", "indec-ipc", "v1", "series.xlsm")
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestMirror_UploadsToObjectStore(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{}
	m, _ := newManager(t, &fakeProbe{status: 200, body: strings.NewReader("bytes")}, blobs)

	got, err := m.Mirror(context.Background(), "https://h/f/rem.pdf", "bcra-rem", "2025-11", "rem.pdf")
	require.NoError(t, err)
	require.Equal(t, "mirrors/bcra-rem/2025-11/rem.pdf", got.ObjectKey)
	require.Equal(t, []byte("bytes"), blobs.objects[got.ObjectKey])
}

func TestMirror_UploadFailureKeepsFilesystemCopy(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{err: errors.New("bucket unavailable")}
	m, root := newManager(t, &fakeProbe{status: 200, body: strings.NewReader("bytes")}, blobs)

	got, err := m.Mirror(context.Background(), "https://h/f/rem.pdf", "bcra-rem", "2025-11", "rem.pdf")
	require.ErrorIs(t, err, ErrObjectUpload)
	require.Equal(t, filepath.Join(root, "bcra-rem", "2025-11", "rem.pdf"), got.StoredPath)
	require.NotEmpty(t, got.SHA256)

	_, statErr := os.Stat(got.StoredPath)
	require.NoError(t, statErr, "local mirror survives an upload failure")
	require.Empty(t, got.ObjectKey)
}

func TestMirror_RejectsTraversalElements(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &fakeProbe{status: 200, body: strings.NewReader("x")}, nil)

	for _, filename := range []string{"../escape.xls", "a/b.xls", ""} {
		_, err := m.Mirror(context.Background(), "https://h/f", "key", "v1", filename)
		require.Error(t, err, "filename %q", filename)
	}
}
