package reconcile

import (
	"context"
	"strings"

	"github.com/tildaslashalef/reposync/internal/loggy"
)

// Verifier checks that a cached remote id still resolves
type Verifier struct {
	probe    func(ctx context.Context, id string) error
	prefixes []string
	logger   *loggy.Logger
}

// NewVerifier creates a verifier. probe must return nil when id exists.
// prefixes are tried in order; the first one id starts with is removed.
func NewVerifier(probe func(ctx context.Context, id string) error, prefixes []string, logger *loggy.Logger) *Verifier {
	return &Verifier{
		probe:    probe,
		prefixes: append([]string(nil), prefixes...),
		logger:   logger,
	}
}

// StripLegacyPrefix removes the first matching legacy prefix from id.
// An id made only of a prefix is returned unchanged.
func (v *Verifier) StripLegacyPrefix(id string) string {
	for _, p := range v.prefixes {
		if p != "" && strings.HasPrefix(id, p) && len(id) > len(p) {
			return id[len(p):]
		}
	}
	return id
}

// Resolve normalizes id and probes the remote for it. Any error is
// reported as absent.
func (v *Verifier) Resolve(ctx context.Context, id string) (string, bool) {
	normalized := v.StripLegacyPrefix(strings.TrimSpace(id))
	if normalized == "" {
		return "", false
	}

	if err := v.probe(ctx, normalized); err != nil {
		v.logger.Debug("Remote id did not verify",
			"remote_id", id,
			"normalized_id", normalized,
			"error_kind", Classify(err),
			"error", err,
		)
		return normalized, false
	}

	if normalized != id {
		v.logger.Debug("Legacy remote id normalized", "remote_id", id, "normalized_id", normalized)
	}
	return normalized, true
}

// Verify reports whether id resolves on the remote
func (v *Verifier) Verify(ctx context.Context, id string) bool {
	_, ok := v.Resolve(ctx, id)
	return ok
}
