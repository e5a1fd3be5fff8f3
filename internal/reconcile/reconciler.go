package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/reposync/internal/loggy"
	"github.com/tildaslashalef/reposync/internal/remote"
)

// EntityReconciler pushes one local entity to the remote, creating or
// updating it. Each call issues at most one remote write.
type EntityReconciler struct {
	api      EntityAPI
	verifier *Verifier
	matcher  Matcher
	pageSize int
	now      func() time.Time
}

// NewEntityReconciler creates a reconciler for the entities behind api
func NewEntityReconciler(api EntityAPI, verifier *Verifier, matcher Matcher, pageSize int) *EntityReconciler {
	return &EntityReconciler{
		api:      api,
		verifier: verifier,
		matcher:  matcher,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Reconcile drives local to synced or error and returns the outcome.
// Remote failures are folded into the result, never returned.
func (r *EntityReconciler) Reconcile(ctx context.Context, local *LocalEntity) *Result {
	res := newResult(local)
	logger := loggy.FromContext(ctx).With(
		"kind", local.Kind,
		"local_id", local.LocalID,
		"name", local.DisplayName,
	)

	if strings.TrimSpace(local.DisplayName) == "" {
		return failResult(logger, local, res, fmt.Errorf("%w: display name is empty", errInvalidEntity))
	}

	var targetID string
	if local.RemoteID != "" {
		if id, ok := r.verifier.Resolve(ctx, local.RemoteID); ok {
			targetID = id
			logger.Debug("Cached remote id verified", "remote_id", id)
		} else {
			logger.Info("Cached remote id not found, resolving by name", "remote_id", local.RemoteID)
		}
	}

	if targetID == "" {
		remotes, err := listAll(ctx, r.pageSize, r.api.List)
		if err != nil {
			// Without a listing a create could duplicate an existing entity
			return failResult(logger, local, res, fmt.Errorf("listing remote %ss: %w", r.api.Kind(), err))
		}

		if m, ok := r.matcher.FindMatch(local.DisplayName, remotes); ok {
			targetID = m.Entity.ID
			res.MatchTier = m.Tier
			res.Ambiguous = m.Ambiguous
			logger.Debug("Matched existing remote entity",
				"remote_id", m.Entity.ID,
				"remote_name", m.Entity.Name,
				"tier", m.Tier.String(),
			)
			if m.Ambiguous {
				res.ErrorKind = ErrorKindAmbiguous
				logger.Warn("Several remote entities match, using the first",
					"remote_id", m.Entity.ID,
					"tier", m.Tier.String(),
				)
			}
		}
	}

	req := requestFor(local)

	var (
		ent *remote.Entity
		err error
	)
	if targetID != "" {
		res.Action = ActionUpdate
		ent, err = r.api.Update(ctx, targetID, req)
	} else {
		res.Action = ActionCreate
		ent, err = r.api.Create(ctx, req)
	}
	if err != nil {
		return failResult(logger, local, res, fmt.Errorf("%s remote %s: %w", res.Action, r.api.Kind(), err))
	}

	remoteID := targetID
	if ent != nil && ent.ID != "" {
		remoteID = ent.ID
	}
	if remoteID == "" {
		return failResult(logger, local, res, fmt.Errorf("remote returned no id for created %s", r.api.Kind()))
	}

	local.MarkSynced(remoteID, r.now())
	res.Success = true
	res.RemoteID = remoteID
	res.Message = fmt.Sprintf("%s %q %sd", local.Kind, local.DisplayName, res.Action)

	logger.Info("Entity reconciled", "remote_id", remoteID, "action", res.Action)
	return res
}

// failResult marks local failed and fills res from err
func failResult(logger *loggy.Logger, local *LocalEntity, res *Result, err error) *Result {
	detail := describe(err)
	local.MarkFailed(detail)

	res.Success = false
	res.ErrorKind = Classify(err)
	res.ErrorDetail = detail
	res.Message = fmt.Sprintf("%s %q failed", local.Kind, local.DisplayName)
	res.RemoteID = local.RemoteID

	logger.Warn("Entity reconciliation failed",
		"remote_id", local.RemoteID,
		"error_kind", res.ErrorKind,
		"error", err,
	)
	return res
}
