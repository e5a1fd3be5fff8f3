package reconcile

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/reposync/internal/remote"
)

func TestChildrenCreateWhenAbsent(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	c := NewChildReconciler(api, 10)

	files := []*LocalEntity{NewLocalFile("a.md", nil), NewLocalFile("b.md", nil)}
	results := c.ReconcileChildren(context.Background(), "p1", files)

	require.Len(t, results, 2)
	for i, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, ActionCreate, res.Action)
		assert.Equal(t, files[i].RemoteID, res.RemoteID)
		assert.Equal(t, StatusSynced, files[i].SyncStatus)
	}
	assert.Equal(t, 1, api.count("ListFiles"), "one listing per parent")
	assert.Equal(t, 0, api.count("DeleteFile"))
	assert.Len(t, api.fileList("p1"), 2)
}

func TestChildrenDeleteThenRecreate(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	api.seedFile("p1", "old-1", "《Guide》")
	c := NewChildReconciler(api, 10)

	file := NewLocalFile("Guide", map[string]any{AttrRemark: "v2"})
	results := c.ReconcileChildren(context.Background(), "p1", []*LocalEntity{file})

	require.Len(t, results, 1)
	res := results[0]
	require.True(t, res.Success)
	assert.Equal(t, ActionRecreate, res.Action)
	assert.NotEqual(t, "old-1", res.RemoteID)
	assert.Equal(t, 1, api.count("DeleteFile"))
	assert.Equal(t, 1, api.count("CreateFile"))

	remaining := api.fileList("p1")
	require.Len(t, remaining, 1)
	assert.Equal(t, res.RemoteID, remaining[0].ID)
	assert.Equal(t, "v2", remaining[0].Remark)
}

func TestChildrenDeleteFailureDoesNotBlock(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	api.seedFile("p1", "old-1", "Guide")
	api.failOp["DeleteFile"] = rejected(http.StatusForbidden)
	c := NewChildReconciler(api, 10)

	file := NewLocalFile("Guide", nil)
	results := c.ReconcileChildren(context.Background(), "p1", []*LocalEntity{file})

	require.True(t, results[0].Success)
	assert.Equal(t, ActionRecreate, results[0].Action)
	assert.Equal(t, 1, api.count("CreateFile"))
}

func TestChildrenMatchedRemoteIsConsumedOnce(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	api.seedFile("p1", "old-1", "Report")
	c := NewChildReconciler(api, 10)

	files := []*LocalEntity{NewLocalFile("Report", nil), NewLocalFile("Report Appendix", nil)}
	results := c.ReconcileChildren(context.Background(), "p1", files)

	require.Len(t, results, 2)
	assert.Equal(t, ActionRecreate, results[0].Action)
	assert.Equal(t, ActionCreate, results[1].Action, "the second file must not match the consumed remote")
	assert.Equal(t, 1, api.count("DeleteFile"))
}

func TestChildrenPreferCachedRemoteID(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	api.seedFile("p1", "f-9", "Old Name")
	c := NewChildReconciler(api, 10)

	file := NewLocalFile("New Name", nil)
	file.RemoteID = "f-9"

	results := c.ReconcileChildren(context.Background(), "p1", []*LocalEntity{file})

	require.True(t, results[0].Success)
	assert.Equal(t, ActionRecreate, results[0].Action)
	require.Len(t, api.fileList("p1"), 1)
	assert.Equal(t, "New Name", api.fileList("p1")[0].Name)
}

func TestChildrenListingFailureFailsAll(t *testing.T) {
	api := newFakeRemote()
	api.failOp["ListFiles"] = errConnRefused
	c := NewChildReconciler(api, 10)

	var settled []string
	c.OnChild(func(_ context.Context, child *LocalEntity, _ *Result, _ time.Duration) {
		settled = append(settled, child.LocalID)
	})

	files := []*LocalEntity{NewLocalFile("a", nil), NewLocalFile("b", nil)}
	results := c.ReconcileChildren(context.Background(), "p1", files)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Success)
		assert.Equal(t, ErrorKindUnreachable, res.ErrorKind)
	}
	assert.Equal(t, 0, api.count("CreateFile"))
	assert.Equal(t, []string{files[0].LocalID, files[1].LocalID}, settled)
	assert.Equal(t, StatusError, files[1].SyncStatus)
}

func TestChildrenIndependentFailures(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	api.failName["CreateFile:bad.md"] = rejected(http.StatusRequestEntityTooLarge)
	c := NewChildReconciler(api, 10)

	files := []*LocalEntity{NewLocalFile("ok.md", nil), NewLocalFile("bad.md", nil), NewLocalFile("also-ok.md", nil)}
	results := c.ReconcileChildren(context.Background(), "p1", files)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, ErrorKindRejected, results[1].ErrorKind)
	assert.True(t, results[2].Success)
}

func TestChildrenRejectBlankName(t *testing.T) {
	api := newFakeRemote()
	api.seedFolder("p1", "Parent")
	c := NewChildReconciler(api, 10)

	blank := &LocalEntity{LocalID: "fil_blank", Kind: KindFile, DisplayName: "   ", SyncStatus: StatusUnsynced}
	files := []*LocalEntity{blank, NewLocalFile("a.md", nil)}
	results := c.ReconcileChildren(context.Background(), "p1", files)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, ErrorKindInvalid, results[0].ErrorKind)
	assert.Equal(t, StatusError, blank.SyncStatus)
	assert.True(t, results[1].Success)
	assert.Equal(t, 1, api.count("CreateFile"))
	assert.Len(t, api.fileList("p1"), 1)
}

func TestChildrenEmpty(t *testing.T) {
	api := newFakeRemote()
	assert.Nil(t, NewChildReconciler(api, 10).ReconcileChildren(context.Background(), "p1", nil))
	assert.Equal(t, 0, api.count("ListFiles"))
}

type recordingPolicy struct {
	seen []string
}

func (p *recordingPolicy) Apply(_ context.Context, parent string, child *LocalEntity, _ *[]remote.Entity) *Result {
	p.seen = append(p.seen, parent+"/"+child.DisplayName)
	child.MarkSynced("x", time.Now())
	res := newResult(child)
	res.Success = true
	return res
}

func TestChildrenPolicyIsSwappable(t *testing.T) {
	api := newFakeRemote()
	policy := &recordingPolicy{}
	c := NewChildReconciler(api, 10).WithPolicy(policy)

	c.ReconcileChildren(context.Background(), "p1", []*LocalEntity{NewLocalFile("a", nil)})

	assert.Equal(t, []string{"p1/a"}, policy.seen)
	assert.Equal(t, 0, api.count("CreateFile"))
}
