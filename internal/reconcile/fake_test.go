package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tildaslashalef/reposync/internal/remote"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:1: connect: connection refused")

// fakeRemote is an in-memory RemoteAPI that counts calls and can be told
// to fail specific operations.
type fakeRemote struct {
	mu      sync.Mutex
	seq     int
	folders []remote.Entity
	files   map[string][]remote.Entity
	calls   map[string]int

	failOp   map[string]error           // op -> error for every call
	failName map[string]error           // op:name -> error for one entity
	onCall   func(op string, arg string) // observed after the call is counted
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:    make(map[string][]remote.Entity),
		calls:    make(map[string]int),
		failOp:   make(map[string]error),
		failName: make(map[string]error),
	}
}

func rejected(status int) error {
	return &remote.APIError{StatusCode: status, Code: "rejected", Message: http.StatusText(status)}
}

func (f *fakeRemote) seedFolder(id, name string) remote.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := remote.Entity{ID: id, Name: name, CreatedAt: time.Now()}
	f.folders = append(f.folders, e)
	return e
}

func (f *fakeRemote) seedFile(folderID, id, name string) remote.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := remote.Entity{ID: id, Name: name, CreatedAt: time.Now()}
	f.files[folderID] = append(f.files[folderID], e)
	return e
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) folderList() []remote.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Entity(nil), f.folders...)
}

func (f *fakeRemote) fileList(folderID string) []remote.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Entity(nil), f.files[folderID]...)
}

// enter counts op and returns the injected error, if any. Callers hold f.mu.
func (f *fakeRemote) enter(op, name string) error {
	f.calls[op]++
	if f.onCall != nil {
		f.onCall(op, name)
	}
	if err, ok := f.failName[op+":"+name]; ok {
		return err
	}
	return f.failOp[op]
}

func (f *fakeRemote) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func page(all []remote.Entity, p, size int) *remote.Page {
	start := (p - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return &remote.Page{Items: append([]remote.Entity{}, all[start:end]...), Total: len(all), Page: p, Size: size}
}

func indexOf(list []remote.Entity, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeRemote) ListFolders(ctx context.Context, p, size int) (*remote.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListFolders", ""); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return page(f.folders, p, size), nil
}

func (f *fakeRemote) GetFolder(ctx context.Context, id string) (*remote.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetFolder", id); err != nil {
		return nil, err
	}
	if i := indexOf(f.folders, id); i >= 0 {
		e := f.folders[i]
		return &e, nil
	}
	return nil, rejected(http.StatusNotFound)
}

func (f *fakeRemote) CreateFolder(ctx context.Context, req *remote.EntityRequest) (*remote.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateFolder", req.Name); err != nil {
		return nil, err
	}
	e := remote.Entity{ID: f.nextID("rf"), Name: req.Name, Type: req.Type, Remark: req.Remark, Attributes: req.Attributes}
	f.folders = append(f.folders, e)
	return &e, nil
}

func (f *fakeRemote) UpdateFolder(ctx context.Context, id string, req *remote.EntityRequest) (*remote.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateFolder", req.Name); err != nil {
		return nil, err
	}
	i := indexOf(f.folders, id)
	if i < 0 {
		return nil, rejected(http.StatusNotFound)
	}
	f.folders[i].Name = req.Name
	f.folders[i].Type = req.Type
	f.folders[i].Remark = req.Remark
	f.folders[i].Attributes = req.Attributes
	e := f.folders[i]
	return &e, nil
}

func (f *fakeRemote) DeleteFolder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteFolder", id); err != nil {
		return err
	}
	i := indexOf(f.folders, id)
	if i < 0 {
		return rejected(http.StatusNotFound)
	}
	f.folders = append(f.folders[:i], f.folders[i+1:]...)
	return nil
}

func (f *fakeRemote) ListFiles(ctx context.Context, folderID string, p, size int) (*remote.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListFiles", folderID); err != nil {
		return nil, err
	}
	return page(f.files[folderID], p, size), nil
}

func (f *fakeRemote) CreateFile(ctx context.Context, folderID string, req *remote.EntityRequest) (*remote.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateFile", req.Name); err != nil {
		return nil, err
	}
	e := remote.Entity{ID: f.nextID("rfile"), Name: req.Name, Remark: req.Remark, Attributes: req.Attributes}
	f.files[folderID] = append(f.files[folderID], e)
	return &e, nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, folderID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteFile", id); err != nil {
		return err
	}
	files := f.files[folderID]
	i := indexOf(files, id)
	if i < 0 {
		return rejected(http.StatusNotFound)
	}
	f.files[folderID] = append(files[:i], files[i+1:]...)
	return nil
}
