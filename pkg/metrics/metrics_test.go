package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesPrivateRegistry(t *testing.T) {
	a := New()
	b := New()
	a.DocsIndexedTotal.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.DocsIndexedTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DocsIndexedTotal))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.BuildsTotal.WithLabelValues("done").Inc()
	m.CorpusSize.Set(5)

	path := filepath.Join(t.TempDir(), "srcindex.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `srcindex_builds_total{outcome="done"} 1`)
	assert.Contains(t, string(data), "srcindex_corpus_size 5")
}
