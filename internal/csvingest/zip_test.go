package csvingest

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestExtractCSVReturnsSingleMember(t *testing.T) {
	r := buildZip(t, map[string]string{"sightings.csv": "sightingId,date\n1,2024-01-01\n"})

	rc, err := ExtractCSV(r, int64(r.Len()))
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Contains(t, string(body), "sightingId")
}

func TestExtractCSVRejectsMultipleCSVFiles(t *testing.T) {
	r := buildZip(t, map[string]string{
		"a.csv": "x\n",
		"b.csv": "y\n",
	})

	_, err := ExtractCSV(r, int64(r.Len()))
	require.Error(t, err)
}

func TestExtractCSVRejectsNoCSVFile(t *testing.T) {
	r := buildZip(t, map[string]string{"readme.txt": "hello"})

	_, err := ExtractCSV(r, int64(r.Len()))
	require.Error(t, err)
}

func TestExtractCSVFullyDecompressesWithinTheCall(t *testing.T) {
	content := "sightingId,date\n1,2024-01-01\n2,2024-01-02\n"
	r := buildZip(t, map[string]string{"sightings.csv": content})

	rc, err := ExtractCSV(r, int64(r.Len()))
	require.NoError(t, err)
	defer rc.Close()

	// The returned reader is already fully materialized in memory: draining
	// it does no further inflate work, which is what lets the caller bound
	// ExtractCSV's own call with a timeout instead of the drain.
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, string(body))
}
