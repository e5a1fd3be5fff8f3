package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/reposync/internal/auth"
	"github.com/tildaslashalef/reposync/internal/cache"
	"github.com/tildaslashalef/reposync/internal/loggy"
)

func newTestService(t *testing.T, api *fakeRemote, opts Options) (*Service, *CacheRepository) {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 10
	}
	if opts.LegacyPrefixes == nil {
		opts.LegacyPrefixes = testPrefixes
	}
	svc := NewService(api, auth.StaticProvider("tok"), cache.NewMemoryStore(), opts, loggy.NewNoopLogger())
	return svc, svc.Repository()
}

func seedFolders(t *testing.T, repo *CacheRepository, names ...string) []*LocalEntity {
	t.Helper()
	folders := make([]*LocalEntity, len(names))
	for i, n := range names {
		folders[i] = NewLocalFolder(n, nil)
	}
	require.NoError(t, repo.SaveFolders(context.Background(), folders))
	return folders
}

func totalCalls(api *fakeRemote) int {
	api.mu.Lock()
	defer api.mu.Unlock()
	n := 0
	for _, c := range api.calls {
		n += c
	}
	return n
}

func TestLatestPolicyLifecycle(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	ctx := context.Background()
	folders := seedFolders(t, repo, "Latest Policy")
	assert.Equal(t, StatusUnsynced, folders[0].SyncStatus)

	var statusDuringCreate SyncStatus
	api.onCall = func(op, _ string) {
		if op == "CreateFolder" {
			cached, err := repo.Folder(ctx, folders[0].LocalID)
			require.NoError(t, err)
			statusDuringCreate = cached.SyncStatus
		}
	}

	summary, err := svc.ReconcileCached(ctx)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RemoteID)
	assert.Equal(t, StatusPending, statusDuringCreate, "pending is persisted before the remote write")

	cached, err := repo.Folder(ctx, folders[0].LocalID)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, cached.SyncStatus)
	assert.Equal(t, res.RemoteID, cached.RemoteID)
	assert.NotEmpty(t, summary.PassID)
}

func TestBatchResilience(t *testing.T) {
	api := newFakeRemote()
	api.failName["CreateFolder:F3"] = rejected(http.StatusInternalServerError)
	svc, repo := newTestService(t, api, Options{})

	folders := seedFolders(t, repo, "F1", "F2", "F3", "F4", "F5")
	summary, err := svc.ReconcileAll(context.Background(), folders)

	require.NoError(t, err)
	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 5)
	for i, res := range summary.Results {
		assert.Equal(t, folders[i].LocalID, res.LocalID, "results keep caller order")
		assert.Equal(t, i != 2, res.Success)
	}
	assert.Equal(t, StatusError, folders[2].SyncStatus)
	assert.Contains(t, folders[2].LastError, "5xx")
}

func TestEveryEntityFailingStillReturnsSummary(t *testing.T) {
	api := newFakeRemote()
	api.failOp["ListFolders"] = errConnRefused
	svc, repo := newTestService(t, api, Options{CheckConsistency: true})

	folders := seedFolders(t, repo, "A", "B")
	summary, err := svc.ReconcileAll(context.Background(), folders)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Nil(t, summary.Consistency, "a failed check leaves no report")
}

func TestCredentialUnavailableFailsFast(t *testing.T) {
	api := newFakeRemote()
	store := cache.NewMemoryStore()
	svc := NewService(api, auth.StaticProvider(""), store, Options{}, loggy.NewNoopLogger())
	folders := seedFolders(t, svc.Repository(), "A", "B")

	summary, err := svc.ReconcileAll(context.Background(), folders)

	assert.ErrorIs(t, err, ErrCredentialUnavailable)
	assert.Equal(t, ErrorKindCredential, Classify(err))
	assert.Nil(t, summary)
	assert.Equal(t, 0, totalCalls(api))

	cached, err := svc.Repository().Folders(context.Background())
	require.NoError(t, err)
	for _, f := range cached {
		assert.Equal(t, StatusUnsynced, f.SyncStatus)
	}

	_, err = svc.CheckCached(context.Background())
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
}

func TestProgressIsDurablePerEntity(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	ctx := context.Background()
	folders := seedFolders(t, repo, "First", "Second")

	var firstStatusDuringSecond SyncStatus
	api.onCall = func(op, name string) {
		if op == "CreateFolder" && name == "Second" {
			cached, err := repo.Folder(ctx, folders[0].LocalID)
			require.NoError(t, err)
			firstStatusDuringSecond = cached.SyncStatus
		}
	}

	_, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, firstStatusDuringSecond)
}

func TestCancellationStopsBeforeNextEntity(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	folders := seedFolders(t, repo, "One", "Two", "Three")
	api.onCall = func(op, name string) {
		if op == "CreateFolder" && name == "One" {
			cancel()
		}
	}

	summary, err := svc.ReconcileAll(ctx, folders)

	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, api.count("CreateFolder"))
	assert.Equal(t, StatusUnsynced, folders[1].SyncStatus, "unprocessed entities stay untouched")
}

func TestInterEntityDelay(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{Delay: 30 * time.Millisecond})
	folders := seedFolders(t, repo, "A", "B", "C")

	start := time.Now()
	summary, err := svc.ReconcileAll(context.Background(), folders)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDelayStartsAfterFolderSettles(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{Delay: 30 * time.Millisecond})
	folders := seedFolders(t, repo, "Slow", "Next")

	var slowDone, nextStart time.Time
	api.onCall = func(op, name string) {
		if op != "CreateFolder" {
			return
		}
		switch name {
		case "Slow":
			time.Sleep(60 * time.Millisecond)
			slowDone = time.Now()
		case "Next":
			nextStart = time.Now()
		}
	}

	summary, err := svc.ReconcileAll(context.Background(), folders)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	require.False(t, nextStart.IsZero())
	assert.GreaterOrEqual(t, nextStart.Sub(slowDone), 25*time.Millisecond)
}

func TestNilFoldersAreNotCounted(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	folders := seedFolders(t, repo, "One", "Two")

	summary, err := svc.ReconcileAll(context.Background(), []*LocalEntity{nil, folders[0], nil, folders[1]})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Len(t, summary.Results, 2)
	assert.Equal(t, 0, summary.Skipped)
}

func TestNilFoldersAreNotSkippedOnCancel(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	folders := seedFolders(t, repo, "One", "Two")
	api.onCall = func(op, name string) {
		if op == "CreateFolder" && name == "One" {
			cancel()
		}
	}

	summary, err := svc.ReconcileAll(ctx, []*LocalEntity{folders[0], nil, folders[1], nil})
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Skipped)
}

func TestChildrenFollowTheirFolder(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{IncludeChildren: true})
	ctx := context.Background()

	folders := seedFolders(t, repo, "Docs")
	files := []*LocalEntity{NewLocalFile("a.md", nil), NewLocalFile("b.md", nil)}
	require.NoError(t, repo.SaveFiles(ctx, folders[0].LocalID, files))

	summary, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)

	res := summary.Results[0]
	require.True(t, res.Success)
	require.Len(t, res.Children, 2)
	assert.False(t, res.PartialChildSync)
	assert.Equal(t, 2, summary.ChildrenSucceeded)

	cached, err := repo.Files(ctx, folders[0].LocalID)
	require.NoError(t, err)
	for _, f := range cached {
		assert.Equal(t, StatusSynced, f.SyncStatus)
		assert.NotEmpty(t, f.RemoteID)
	}
	assert.Len(t, api.fileList(res.RemoteID), 2)
}

func TestPartialChildSyncKeepsParentSuccess(t *testing.T) {
	api := newFakeRemote()
	api.failName["CreateFile:b.md"] = rejected(http.StatusBadRequest)
	svc, repo := newTestService(t, api, Options{IncludeChildren: true})
	ctx := context.Background()

	folders := seedFolders(t, repo, "Docs")
	require.NoError(t, repo.SaveFiles(ctx, folders[0].LocalID, []*LocalEntity{
		NewLocalFile("a.md", nil), NewLocalFile("b.md", nil),
	}))

	summary, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)

	res := summary.Results[0]
	assert.True(t, res.Success)
	assert.True(t, res.PartialChildSync)
	assert.Equal(t, ErrorKindPartialChildSync, res.ErrorKind)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.ChildrenFailed)
	assert.Equal(t, StatusSynced, folders[0].SyncStatus)

	cached, err := repo.Files(ctx, folders[0].LocalID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, cached[1].SyncStatus)
}

func TestFailedFolderSkipsChildren(t *testing.T) {
	api := newFakeRemote()
	api.failOp["CreateFolder"] = errConnRefused
	svc, repo := newTestService(t, api, Options{IncludeChildren: true})
	ctx := context.Background()

	folders := seedFolders(t, repo, "Docs")
	require.NoError(t, repo.SaveFiles(ctx, folders[0].LocalID, []*LocalEntity{NewLocalFile("a.md", nil)}))

	_, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)
	assert.Equal(t, 0, api.count("ListFiles"))
}

func TestChildrenDisabled(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{IncludeChildren: false})
	ctx := context.Background()

	folders := seedFolders(t, repo, "Docs")
	require.NoError(t, repo.SaveFiles(ctx, folders[0].LocalID, []*LocalEntity{NewLocalFile("a.md", nil)}))

	_, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)
	assert.Equal(t, 0, api.count("ListFiles"))
}

func TestConsistencyReport(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("orphan", "Orphan")
	api.failName["CreateFolder:Broken"] = rejected(http.StatusBadRequest)
	svc, repo := newTestService(t, api, Options{CheckConsistency: true})

	folders := seedFolders(t, repo, "Good", "Broken")
	summary, err := svc.ReconcileAll(context.Background(), folders)
	require.NoError(t, err)

	report := summary.Consistency
	require.NotNil(t, report)
	assert.Equal(t, 2, report.RemoteTotal)
	assert.Equal(t, 2, report.LocalTotal)
	assert.Equal(t, 1, report.Matched)
	require.Len(t, report.RemoteOnly, 1)
	assert.Equal(t, "orphan", report.RemoteOnly[0].ID)
	require.Len(t, report.LocalOnly, 1)
	assert.Equal(t, "Broken", report.LocalOnly[0].DisplayName)
	assert.False(t, report.InSync())
}

func TestCheckCachedIsReadOnly(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("r-1", "Alpha")
	svc, repo := newTestService(t, api, Options{})
	ctx := context.Background()
	seedFolders(t, repo, "Alpha", "Beta")

	before, err := repo.Folders(ctx)
	require.NoError(t, err)

	report, err := svc.CheckCached(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Len(t, report.LocalOnly, 1)

	after, err := repo.Folders(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, api.count("CreateFolder")+api.count("UpdateFolder")+api.count("DeleteFolder"))
}

func TestConcurrentPassesDoNotDuplicate(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	seedFolders(t, repo, "A", "B", "C")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReconcileCached(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, api.folderList(), 3)
	assert.Equal(t, 3, api.count("CreateFolder"))
}

func TestDeleteFolder(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	ctx := context.Background()

	folders := seedFolders(t, repo, "Keep", "Drop")
	require.NoError(t, repo.SaveFiles(ctx, folders[1].LocalID, []*LocalEntity{NewLocalFile("x", nil)}))
	_, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)
	remoteID := folders[1].RemoteID

	removed, err := svc.DeleteFolder(ctx, folders[1].LocalID)
	require.NoError(t, err)
	assert.Equal(t, remoteID, removed.RemoteID)
	assert.Equal(t, 1, api.count("DeleteFolder"))
	assert.Len(t, api.folderList(), 1)

	cached, err := repo.Folders(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Keep", cached[0].DisplayName)

	files, err := repo.Files(ctx, folders[1].LocalID)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = svc.DeleteFolder(ctx, "missing")
	assert.ErrorIs(t, err, ErrLocalNotFound)
}

func TestDeleteFolderRemoteFailureIsBestEffort(t *testing.T) {
	api := newFakeRemote()
	api.failOp["DeleteFolder"] = errConnRefused
	svc, repo := newTestService(t, api, Options{})
	ctx := context.Background()

	folder := NewLocalFolder("Legacy", nil)
	folder.RemoteID = "kb-42"
	require.NoError(t, repo.SaveFolders(ctx, []*LocalEntity{folder}))

	_, err := svc.DeleteFolder(ctx, folder.LocalID)
	require.NoError(t, err)

	cached, err := repo.Folders(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)
	assert.Equal(t, 1, api.count("DeleteFolder"))
}

func TestDeleteFolderWithoutRemoteID(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{})
	folders := seedFolders(t, repo, "Local only")

	_, err := svc.DeleteFolder(context.Background(), folders[0].LocalID)
	require.NoError(t, err)
	assert.Equal(t, 0, totalCalls(api))
}

func TestDeleteFile(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{IncludeChildren: true})
	ctx := context.Background()

	folders := seedFolders(t, repo, "Docs")
	files := []*LocalEntity{NewLocalFile("a.md", nil), NewLocalFile("b.md", nil)}
	require.NoError(t, repo.SaveFiles(ctx, folders[0].LocalID, files))
	_, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)

	removed, err := svc.DeleteFile(ctx, folders[0].LocalID, files[0].LocalID)
	require.NoError(t, err)
	assert.Equal(t, "a.md", removed.DisplayName)
	assert.Equal(t, 1, api.count("DeleteFile"))
	assert.Len(t, api.fileList(folders[0].RemoteID), 1)

	_, err = svc.DeleteFile(ctx, folders[0].LocalID, "missing")
	assert.ErrorIs(t, err, ErrLocalNotFound)

	_, err = svc.DeleteFile(ctx, "no-folder", files[1].LocalID)
	assert.ErrorIs(t, err, ErrLocalNotFound)
}

type captureJournal struct {
	entries []*JournalEntry
}

func (c *captureJournal) Record(_ context.Context, e *JournalEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

type captureObserver struct {
	results int
	batches int
}

func (c *captureObserver) ObserveResult(*Result, time.Duration) { c.results++ }
func (c *captureObserver) ObserveBatch(*BatchSummary)         { c.batches++ }

func TestJournalAndObserver(t *testing.T) {
	api := newFakeRemote()
	svc, repo := newTestService(t, api, Options{IncludeChildren: true})
	ctx := context.Background()

	journal := &captureJournal{}
	observer := &captureObserver{}
	svc.SetJournal(journal)
	svc.SetObserver(observer)

	folders := seedFolders(t, repo, "Docs", "Empty")
	require.NoError(t, repo.SaveFiles(ctx, folders[0].LocalID, []*LocalEntity{NewLocalFile("a.md", nil)}))

	summary, err := svc.ReconcileAll(ctx, folders)
	require.NoError(t, err)

	require.Len(t, journal.entries, 3)
	for _, e := range journal.entries {
		assert.Equal(t, summary.PassID, e.PassID)
	}

	byKind := map[Kind]int{}
	for _, e := range journal.entries {
		byKind[e.Kind]++
		if e.Kind == KindFile {
			assert.Equal(t, folders[0].LocalID, e.ParentLocalID)
		}
	}
	assert.Equal(t, map[Kind]int{KindFolder: 2, KindFile: 1}, byKind)
	assert.Equal(t, 3, observer.results)
	assert.Equal(t, 1, observer.batches)
}

func TestLocalEntityInvariants(t *testing.T) {
	e := NewLocalFolder("X", nil)
	require.NoError(t, e.Validate())

	e.MarkPending()
	require.NoError(t, e.Validate())

	e.MarkFailed("")
	assert.Equal(t, "unknown error", e.LastError)
	require.NoError(t, e.Validate())

	e.MarkSynced("r-1", time.Now())
	require.NoError(t, e.Validate())
	assert.Empty(t, e.LastError)

	e.RemoteID = ""
	assert.Error(t, e.Validate())

	e.SyncStatus = "weird"
	assert.Error(t, e.Validate())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{auth.ErrNoToken, ErrorKindCredential},
		{fmt.Errorf("wrapped: %w", rejected(http.StatusForbidden)), ErrorKindRejected},
		{errConnRefused, ErrorKindUnreachable},
		{context.DeadlineExceeded, ErrorKindUnreachable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}
