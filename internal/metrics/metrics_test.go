package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/reposync/internal/reconcile"
)

func TestObserveResult(t *testing.T) {
	r := NewRecorder()

	r.ObserveResult(&reconcile.Result{Kind: reconcile.KindFolder, Action: reconcile.ActionCreate, Success: true}, 20*time.Millisecond)
	r.ObserveResult(&reconcile.Result{
		Kind:      reconcile.KindFolder,
		Action:    reconcile.ActionUpdate,
		Success:   true,
		Ambiguous: true,
		ErrorKind: reconcile.ErrorKindAmbiguous,
	}, time.Millisecond)
	r.ObserveResult(&reconcile.Result{
		Kind:      reconcile.KindFile,
		Action:    reconcile.ActionNone,
		ErrorKind: reconcile.ErrorKindRejected,
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.entitiesTotal.WithLabelValues("folder", "create", "synced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entitiesTotal.WithLabelValues("file", "none", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("file", "remote_rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ambiguousTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(r.entityDuration))
}

func TestObserveBatch(t *testing.T) {
	r := NewRecorder()

	r.ObserveBatch(&reconcile.BatchSummary{Succeeded: 3, Duration: time.Second})
	r.ObserveBatch(&reconcile.BatchSummary{Succeeded: 2, Failed: 1})
	r.ObserveBatch(&reconcile.BatchSummary{Cancelled: true, Skipped: 4})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.passesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.passesTotal.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.passesTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lastPassSucceeded))
	assert.Greater(t, testutil.ToFloat64(r.lastPassTimestamp), 0.0)
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveBatch(&reconcile.BatchSummary{Succeeded: 1})

	path := filepath.Join(t.TempDir(), "reposync.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reposync_passes_total")
	assert.Contains(t, string(data), `result="ok"`)
}
