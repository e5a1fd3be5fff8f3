package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/reposync/internal/loggy"
	"github.com/tildaslashalef/reposync/internal/remote"
)

// ChildPolicy pushes one child given the parent's current remote listing.
// Implementations may shrink listing to drop remotes they consumed.
type ChildPolicy interface {
	Apply(ctx context.Context, parentRemoteID string, child *LocalEntity, listing *[]remote.Entity) *Result
}

// DeleteThenRecreate replaces a matched remote child with a fresh one,
// since files cannot be updated in place.
type DeleteThenRecreate struct {
	api     FileAPI
	matcher Matcher
	now     func() time.Time
}

// NewDeleteThenRecreate creates the policy with its own TieredMatcher
func NewDeleteThenRecreate(api FileAPI) *DeleteThenRecreate {
	return &DeleteThenRecreate{
		api:     api,
		matcher: NewTieredMatcher(),
		now:     time.Now,
	}
}

func (p *DeleteThenRecreate) Apply(ctx context.Context, parentRemoteID string, child *LocalEntity, listing *[]remote.Entity) *Result {
	res := newResult(child)
	logger := loggy.FromContext(ctx).With(
		"kind", child.Kind,
		"local_id", child.LocalID,
		"name", child.DisplayName,
		"parent_remote_id", parentRemoteID,
	)

	if strings.TrimSpace(child.DisplayName) == "" {
		return failResult(logger, child, res, fmt.Errorf("%w: display name is empty", errInvalidEntity))
	}

	if old, ok := p.counterpart(child, *listing, res); ok {
		if err := p.api.DeleteFile(ctx, parentRemoteID, old.ID); err != nil {
			logger.Warn("Failed to delete remote file before recreate",
				"remote_id", old.ID,
				"error_kind", Classify(err),
				"error", err,
			)
		} else {
			logger.Debug("Deleted remote file before recreate", "remote_id", old.ID)
		}
		// Consumed either way, so no later sibling matches it again
		*listing = without(*listing, old.ID)
		res.Action = ActionRecreate
	} else {
		res.Action = ActionCreate
	}

	ent, err := p.api.CreateFile(ctx, parentRemoteID, requestFor(child))
	if err != nil {
		return failResult(logger, child, res, fmt.Errorf("create remote file: %w", err))
	}
	if ent == nil || ent.ID == "" {
		return failResult(logger, child, res, fmt.Errorf("remote returned no id for created file"))
	}

	child.MarkSynced(ent.ID, p.now())
	res.Success = true
	res.RemoteID = ent.ID
	res.Message = fmt.Sprintf("%s %q %sd", child.Kind, child.DisplayName, res.Action)

	logger.Info("Child reconciled", "remote_id", ent.ID, "action", res.Action)
	return res
}

// counterpart finds the remote copy of child: its cached id when still
// listed, otherwise the matcher's pick by name.
func (p *DeleteThenRecreate) counterpart(child *LocalEntity, listing []remote.Entity, res *Result) (remote.Entity, bool) {
	if child.RemoteID != "" {
		for _, e := range listing {
			if e.ID == child.RemoteID {
				return e, true
			}
		}
	}

	m, ok := p.matcher.FindMatch(child.DisplayName, listing)
	if !ok {
		return remote.Entity{}, false
	}
	res.MatchTier = m.Tier
	res.Ambiguous = m.Ambiguous
	if m.Ambiguous {
		res.ErrorKind = ErrorKindAmbiguous
	}
	return m.Entity, true
}

func without(list []remote.Entity, id string) []remote.Entity {
	out := list[:0:0]
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// ChildReconciler pushes the files of one folder
type ChildReconciler struct {
	api       FileAPI
	policy    ChildPolicy
	pageSize  int
	afterEach func(ctx context.Context, child *LocalEntity, res *Result, elapsed time.Duration)
}

// NewChildReconciler creates a reconciler using the DeleteThenRecreate policy
func NewChildReconciler(api FileAPI, pageSize int) *ChildReconciler {
	return &ChildReconciler{
		api:      api,
		policy:   NewDeleteThenRecreate(api),
		pageSize: pageSize,
	}
}

// WithPolicy swaps the per-child policy
func (c *ChildReconciler) WithPolicy(p ChildPolicy) *ChildReconciler {
	c.policy = p
	return c
}

// OnChild registers a hook run after each child settles
func (c *ChildReconciler) OnChild(fn func(ctx context.Context, child *LocalEntity, res *Result, elapsed time.Duration)) {
	c.afterEach = fn
}

// ReconcileChildren lists the parent's remote files once, then applies the
// policy to every child in order. Children are updated in place.
func (c *ChildReconciler) ReconcileChildren(ctx context.Context, parentRemoteID string, children []*LocalEntity) []*Result {
	if len(children) == 0 {
		return nil
	}

	logger := loggy.FromContext(ctx).With("parent_remote_id", parentRemoteID)
	results := make([]*Result, 0, len(children))

	listing, err := listAll(ctx, c.pageSize, func(ctx context.Context, page, size int) (*remote.Page, error) {
		return c.api.ListFiles(ctx, parentRemoteID, page, size)
	})
	if err != nil {
		err = fmt.Errorf("listing remote files: %w", err)
		logger.Warn("Cannot list remote files, failing all children", "children", len(children), "error", err)
		for _, child := range children {
			res := failResult(logger, child, newResult(child), err)
			results = append(results, res)
			c.settle(ctx, child, res, 0)
		}
		return results
	}

	for _, child := range children {
		started := time.Now()
		res := c.policy.Apply(ctx, parentRemoteID, child, &listing)
		results = append(results, res)
		c.settle(ctx, child, res, time.Since(started))
	}
	return results
}

func (c *ChildReconciler) settle(ctx context.Context, child *LocalEntity, res *Result, elapsed time.Duration) {
	if c.afterEach != nil {
		c.afterEach(ctx, child, res, elapsed)
	}
}
