package reconcile

import (
	"context"
	"fmt"

	"github.com/tildaslashalef/reposync/internal/remote"
)

// FolderAPI is the folder half of the remote service
type FolderAPI interface {
	ListFolders(ctx context.Context, page, size int) (*remote.Page, error)
	GetFolder(ctx context.Context, id string) (*remote.Entity, error)
	CreateFolder(ctx context.Context, req *remote.EntityRequest) (*remote.Entity, error)
	UpdateFolder(ctx context.Context, id string, req *remote.EntityRequest) (*remote.Entity, error)
	DeleteFolder(ctx context.Context, id string) error
}

// FileAPI is the file half of the remote service. There is no update call.
type FileAPI interface {
	ListFiles(ctx context.Context, folderID string, page, size int) (*remote.Page, error)
	CreateFile(ctx context.Context, folderID string, req *remote.EntityRequest) (*remote.Entity, error)
	DeleteFile(ctx context.Context, folderID, id string) error
}

// RemoteAPI is everything the engine needs from the remote service;
// *remote.Client satisfies it.
type RemoteAPI interface {
	FolderAPI
	FileAPI
}

// EntityAPI adapts one kind of remote entity for the EntityReconciler
type EntityAPI interface {
	Kind() Kind
	Probe(ctx context.Context, id string) error
	List(ctx context.Context, page, size int) (*remote.Page, error)
	Create(ctx context.Context, req *remote.EntityRequest) (*remote.Entity, error)
	Update(ctx context.Context, id string, req *remote.EntityRequest) (*remote.Entity, error)
}

type folderEntities struct {
	api FolderAPI
}

// FolderEntities binds the folder calls of api to EntityAPI
func FolderEntities(api FolderAPI) EntityAPI {
	return folderEntities{api: api}
}

func (f folderEntities) Kind() Kind { return KindFolder }

func (f folderEntities) Probe(ctx context.Context, id string) error {
	_, err := f.api.GetFolder(ctx, id)
	return err
}

func (f folderEntities) List(ctx context.Context, page, size int) (*remote.Page, error) {
	return f.api.ListFolders(ctx, page, size)
}

func (f folderEntities) Create(ctx context.Context, req *remote.EntityRequest) (*remote.Entity, error) {
	return f.api.CreateFolder(ctx, req)
}

func (f folderEntities) Update(ctx context.Context, id string, req *remote.EntityRequest) (*remote.Entity, error) {
	return f.api.UpdateFolder(ctx, id, req)
}

// maxListPages bounds a listing against servers that ignore paging
const maxListPages = 1000

// listAll walks every page of a listing
func listAll(ctx context.Context, size int, fetch func(ctx context.Context, page, size int) (*remote.Page, error)) ([]remote.Entity, error) {
	if size <= 0 {
		size = 100
	}

	var all []remote.Entity
	for page := 1; page <= maxListPages; page++ {
		p, err := fetch(ctx, page, size)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if p.Size == 0 {
			p.Size = size
		}
		if p.Last(len(all)) {
			return all, nil
		}
	}
	return nil, fmt.Errorf("listing did not end after %d pages", maxListPages)
}
