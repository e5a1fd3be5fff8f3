package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tildaslashalef/reposync/internal/auth"
	"github.com/tildaslashalef/reposync/internal/cache"
	"github.com/tildaslashalef/reposync/internal/loggy"
	"github.com/tildaslashalef/reposync/internal/remote"
	"golang.org/x/time/rate"
)

// Options tunes a Service
type Options struct {
	Delay            time.Duration // pause after a folder settles, before the next starts
	IncludeChildren  bool
	CheckConsistency bool
	PageSize         int
	LegacyPrefixes   []string
}

// Observer receives outcomes as they happen, e.g. for metrics
type Observer interface {
	ObserveResult(r *Result, elapsed time.Duration)
	ObserveBatch(s *BatchSummary)
}

// Service runs reconciliation passes over the cached folders and files
type Service struct {
	api      RemoteAPI
	tokens   auth.TokenProvider
	repo     *CacheRepository
	verifier *Verifier
	matcher  Matcher
	folders  *EntityReconciler
	children *ChildReconciler
	journal  Journal
	observer Observer
	opts     Options
	logger   *loggy.Logger
	now      func() time.Time

	mu sync.Mutex // one pass at a time
}

// NewService wires the engine over api, tokens and store
func NewService(api RemoteAPI, tokens auth.TokenProvider, store cache.Store, opts Options, logger *loggy.Logger) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}

	folderAPI := FolderEntities(api)
	verifier := NewVerifier(folderAPI.Probe, opts.LegacyPrefixes, logger)
	matcher := NewTieredMatcher()

	s := &Service{
		api:      api,
		tokens:   tokens,
		repo:     NewCacheRepository(store),
		verifier: verifier,
		matcher:  matcher,
		folders:  NewEntityReconciler(folderAPI, verifier, matcher, opts.PageSize),
		children: NewChildReconciler(api, opts.PageSize),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
	s.children.OnChild(s.persistChild)
	return s
}

// SetJournal enables per-entity audit records
func (s *Service) SetJournal(j Journal) {
	s.journal = j
}

// SetObserver registers an outcome observer
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Repository exposes the cache collections
func (s *Service) Repository() *CacheRepository {
	return s.repo
}

// ReconcileCached loads the cached folders and reconciles them
func (s *Service) ReconcileCached(ctx context.Context) (*BatchSummary, error) {
	folders, err := s.repo.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cached folders: %w", err)
	}
	return s.ReconcileAll(ctx, folders)
}

// ReconcileAll reconciles locals one after another in the given order.
// Every folder is attempted once and its outcome persisted before the next
// starts; per-entity failures end up in the summary. The only error
// returned is ErrCredentialUnavailable, before any remote call.
// Cancelling ctx stops the batch before the next folder.
func (s *Service) ReconcileAll(ctx context.Context, locals []*LocalEntity) (*BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	if err := s.requireToken(ctx); err != nil {
		return nil, err
	}

	passID := loggy.NewPassID()
	ctx = loggy.WithLogger(ctx, s.logger)
	ctx = loggy.WithPassID(ctx, passID)
	logger := loggy.FromContext(ctx)

	if kept := withoutNil(locals); len(kept) != len(locals) {
		logger.Warn("Ignoring nil folders", "count", len(locals)-len(kept))
		locals = kept
	}

	summary := &BatchSummary{PassID: passID, Results: make([]*Result, 0, len(locals))}
	logger.Info("Reconciliation pass started", "folders", len(locals), "include_children", s.opts.IncludeChildren)

	pace := &pacer{every: s.opts.Delay}
	for i, local := range locals {
		if err := pace.wait(ctx); err != nil {
			summary.Cancelled = true
			summary.Skipped = len(locals) - i
			logger.Warn("Reconciliation pass cancelled", "skipped", summary.Skipped, "error", err)
			break
		}
		summary.add(s.reconcileFolder(ctx, passID, local))
		pace.settled()
	}

	if s.opts.CheckConsistency && !summary.Cancelled {
		report, err := CheckConsistency(ctx, s.api, s.verifier, s.matcher, s.opts.PageSize, locals)
		if err != nil {
			logger.Warn("Consistency check failed", "error", err)
		}
		summary.Consistency = report
	}

	summary.Duration = s.now().Sub(start)
	if s.observer != nil {
		s.observer.ObserveBatch(summary)
	}

	logger.Info("Reconciliation pass finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"children_failed", summary.ChildrenFailed,
		"duration", summary.Duration,
	)
	return summary, nil
}

// pacer holds each folder back until Delay has passed since the previous
// one settled. The first folder of a pass starts at once.
type pacer struct {
	every   time.Duration
	limiter *rate.Limiter
}

func (p *pacer) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// settled restarts the interval from now with an empty bucket
func (p *pacer) settled() {
	if p.every <= 0 {
		return
	}
	p.limiter = rate.NewLimiter(rate.Every(p.every), 1)
	p.limiter.Allow()
}

func withoutNil(locals []*LocalEntity) []*LocalEntity {
	kept := make([]*LocalEntity, 0, len(locals))
	for _, l := range locals {
		if l != nil {
			kept = append(kept, l)
		}
	}
	return kept
}

func (s *Service) requireToken(ctx context.Context) error {
	if _, err := auth.Available(ctx, s.tokens); err != nil {
		s.logger.Error("No credential available, aborting reconciliation", "error", err)
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return nil
}

func (s *Service) reconcileFolder(ctx context.Context, passID string, folder *LocalEntity) *Result {
	started := s.now()
	logger := loggy.FromContext(ctx).With("local_id", folder.LocalID, "kind", folder.Kind)

	folder.MarkPending()
	s.persistFolder(ctx, folder)

	res := s.folders.Reconcile(ctx, folder)

	if res.Success && s.opts.IncludeChildren {
		s.reconcileFiles(ctx, folder, res)
	}

	s.persistFolder(ctx, folder)
	s.record(ctx, passID, "", res)
	if s.observer != nil {
		s.observer.ObserveResult(res, s.now().Sub(started))
	}

	logger.Debug("Folder settled", "success", res.Success, "status", folder.SyncStatus)
	return res
}

// reconcileFiles pushes the folder's files and flags res when any fails.
// The folder's own success is never downgraded.
func (s *Service) reconcileFiles(ctx context.Context, folder *LocalEntity, res *Result) {
	logger := loggy.FromContext(ctx).With("local_id", folder.LocalID)

	files, err := s.repo.Files(ctx, folder.LocalID)
	if err != nil {
		logger.Warn("Cannot load cached files", "error", err)
		res.PartialChildSync = true
		res.ErrorKind = ErrorKindPartialChildSync
		return
	}
	if len(files) == 0 {
		return
	}

	for _, f := range files {
		f.MarkPending()
	}
	if err := s.repo.SaveFiles(ctx, folder.LocalID, files); err != nil {
		logger.Error("Failed to persist pending files", "error", err)
	}

	ctx = withParent(ctx, folder.LocalID)
	res.Children = s.children.ReconcileChildren(ctx, res.RemoteID, files)

	for _, c := range res.Children {
		if !c.Success {
			res.PartialChildSync = true
			res.ErrorKind = ErrorKindPartialChildSync
			break
		}
	}
	if res.PartialChildSync {
		logger.Warn("Some files failed to reconcile", "files", len(files))
	}
}

func (s *Service) persistFolder(ctx context.Context, folder *LocalEntity) {
	if err := s.repo.UpsertFolder(ctx, folder); err != nil {
		loggy.FromContext(ctx).Error("Failed to persist folder", "local_id", folder.LocalID, "error", err)
	}
}

func (s *Service) persistChild(ctx context.Context, child *LocalEntity, res *Result, elapsed time.Duration) {
	parentID := parentFrom(ctx)
	if parentID == "" {
		return
	}
	if err := s.repo.UpsertFile(ctx, parentID, child); err != nil {
		loggy.FromContext(ctx).Error("Failed to persist file", "local_id", child.LocalID, "error", err)
	}
	s.record(ctx, loggy.PassID(ctx), parentID, res)
	if s.observer != nil {
		s.observer.ObserveResult(res, elapsed)
	}
}

func (s *Service) record(ctx context.Context, passID, parentLocalID string, res *Result) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, EntryFromResult(passID, parentLocalID, res, s.now())); err != nil {
		loggy.FromContext(ctx).Warn("Failed to write journal entry", "local_id", res.LocalID, "error", err)
	}
}

// CheckCached runs the read-only consistency report over the cached folders
func (s *Service) CheckCached(ctx context.Context) (*ConsistencyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireToken(ctx); err != nil {
		return nil, err
	}

	folders, err := s.repo.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cached folders: %w", err)
	}
	return CheckConsistency(loggy.WithLogger(ctx, s.logger), s.api, s.verifier, s.matcher, s.opts.PageSize, folders)
}

// DeleteFolder removes a folder and its files from the cache, then deletes
// the remote folder using the last known remote id. The remote delete is
// best effort.
func (s *Service) DeleteFolder(ctx context.Context, localID string) (*LocalEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := s.repo.RemoveFolder(ctx, localID)
	if folder == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("Folder removed but its files were not", "local_id", localID, "error", err)
	}

	if folder.RemoteID != "" {
		id := s.verifier.StripLegacyPrefix(folder.RemoteID)
		s.remoteDelete(folder, id, func() error { return s.api.DeleteFolder(ctx, id) })
	}
	return folder, nil
}

// DeleteFile removes a file from the cache and best-effort deletes its
// remote copy when both it and its folder have remote ids
func (s *Service) DeleteFile(ctx context.Context, folderLocalID, localID string) (*LocalEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := s.repo.Folder(ctx, folderLocalID)
	if err != nil {
		return nil, err
	}

	file, err := s.repo.RemoveFile(ctx, folderLocalID, localID)
	if err != nil {
		return nil, err
	}

	if file.RemoteID != "" && folder.RemoteID != "" {
		parentID := s.verifier.StripLegacyPrefix(folder.RemoteID)
		s.remoteDelete(file, file.RemoteID, func() error { return s.api.DeleteFile(ctx, parentID, file.RemoteID) })
	}
	return file, nil
}

func (s *Service) remoteDelete(e *LocalEntity, remoteID string, del func() error) {
	err := del()
	switch {
	case err == nil:
		s.logger.Info("Remote entity deleted", "kind", e.Kind, "local_id", e.LocalID, "remote_id", remoteID)
	case errors.Is(err, remote.ErrNotFound):
		s.logger.Debug("Remote entity already gone", "kind", e.Kind, "local_id", e.LocalID, "remote_id", remoteID)
	default:
		s.logger.Warn("Remote delete failed",
			"kind", e.Kind,
			"local_id", e.LocalID,
			"remote_id", remoteID,
			"error_kind", Classify(err),
			"error", err,
		)
	}
}

type parentKey struct{}

func withParent(ctx context.Context, folderLocalID string) context.Context {
	return context.WithValue(ctx, parentKey{}, folderLocalID)
}

func parentFrom(ctx context.Context) string {
	id, _ := ctx.Value(parentKey{}).(string)
	return id
}
