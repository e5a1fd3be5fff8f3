package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tildaslashalef/reposync/internal/cache"
)

// CacheRepository stores the folder and file collections in a cache.Store.
// Folders live under one key as a JSON list; each folder's files under
// their own key.
type CacheRepository struct {
	store cache.Store
}

// NewCacheRepository creates a repository over store
func NewCacheRepository(store cache.Store) *CacheRepository {
	return &CacheRepository{store: store}
}

// Folders returns the cached folders in stored order
func (r *CacheRepository) Folders(ctx context.Context) ([]*LocalEntity, error) {
	return r.load(ctx, cache.KeyFolders)
}

// SaveFolders replaces the folder collection
func (r *CacheRepository) SaveFolders(ctx context.Context, folders []*LocalEntity) error {
	return r.save(ctx, cache.KeyFolders, folders)
}

// Folder returns one folder by local id
func (r *CacheRepository) Folder(ctx context.Context, localID string) (*LocalEntity, error) {
	folders, err := r.Folders(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByLocalID(folders, localID); i >= 0 {
		return folders[i], nil
	}
	return nil, fmt.Errorf("folder %s: %w", localID, ErrLocalNotFound)
}

// UpsertFolder writes one folder back, appending it when new
func (r *CacheRepository) UpsertFolder(ctx context.Context, folder *LocalEntity) error {
	return r.upsert(ctx, cache.KeyFolders, folder)
}

// RemoveFolder deletes a folder and its file collection
func (r *CacheRepository) RemoveFolder(ctx context.Context, localID string) (*LocalEntity, error) {
	removed, err := r.remove(ctx, cache.KeyFolders, localID)
	if err != nil {
		return nil, err
	}
	if err := r.store.Delete(ctx, cache.FilesKey(localID)); err != nil {
		return removed, fmt.Errorf("deleting files of folder %s: %w", localID, err)
	}
	return removed, nil
}

// Files returns the cached files of a folder
func (r *CacheRepository) Files(ctx context.Context, folderLocalID string) ([]*LocalEntity, error) {
	return r.load(ctx, cache.FilesKey(folderLocalID))
}

// SaveFiles replaces the file collection of a folder
func (r *CacheRepository) SaveFiles(ctx context.Context, folderLocalID string, files []*LocalEntity) error {
	return r.save(ctx, cache.FilesKey(folderLocalID), files)
}

// UpsertFile writes one file back, appending it when new
func (r *CacheRepository) UpsertFile(ctx context.Context, folderLocalID string, file *LocalEntity) error {
	return r.upsert(ctx, cache.FilesKey(folderLocalID), file)
}

// RemoveFile deletes one file of a folder
func (r *CacheRepository) RemoveFile(ctx context.Context, folderLocalID, localID string) (*LocalEntity, error) {
	return r.remove(ctx, cache.FilesKey(folderLocalID), localID)
}

func (r *CacheRepository) load(ctx context.Context, key string) ([]*LocalEntity, error) {
	var list []*LocalEntity
	if _, err := cache.GetJSON(ctx, r.store, key, &list); err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return list, nil
}

func (r *CacheRepository) save(ctx context.Context, key string, list []*LocalEntity) error {
	if list == nil {
		list = []*LocalEntity{}
	}
	if err := cache.SetJSON(ctx, r.store, key, list); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func (r *CacheRepository) upsert(ctx context.Context, key string, e *LocalEntity) error {
	list, err := r.load(ctx, key)
	if err != nil {
		return err
	}

	e.UpdatedAt = time.Now().UTC()
	if i := indexByLocalID(list, e.LocalID); i >= 0 {
		list[i] = e
	} else {
		list = append(list, e)
	}
	return r.save(ctx, key, list)
}

func (r *CacheRepository) remove(ctx context.Context, key, localID string) (*LocalEntity, error) {
	list, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}

	i := indexByLocalID(list, localID)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", key, localID, ErrLocalNotFound)
	}
	removed := list[i]
	list = append(list[:i], list[i+1:]...)
	return removed, r.save(ctx, key, list)
}

func indexByLocalID(list []*LocalEntity, localID string) int {
	for i, e := range list {
		if e != nil && e.LocalID == localID {
			return i
		}
	}
	return -1
}
