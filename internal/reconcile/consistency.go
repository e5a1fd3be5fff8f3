package reconcile

import (
	"context"
	"fmt"

	"github.com/tildaslashalef/reposync/internal/remote"
)

// ConsistencyReport compares the local folders with the remote listing
type ConsistencyReport struct {
	RemoteTotal int             `json:"remote_total"`
	LocalTotal  int             `json:"local_total"`
	Matched     int             `json:"matched"`
	RemoteOnly  []remote.Entity `json:"remote_only,omitempty"`
	LocalOnly   []LocalEntity   `json:"local_only,omitempty"`
}

// InSync reports whether every local folder has a remote counterpart and
// the remote holds nothing else
func (r *ConsistencyReport) InSync() bool {
	return len(r.RemoteOnly) == 0 && len(r.LocalOnly) == 0
}

// CheckConsistency lists the remote folders and pairs them with locals,
// first by remote id, then by name. It reads only; locals are not touched.
func CheckConsistency(ctx context.Context, api FolderAPI, verifier *Verifier, matcher Matcher, pageSize int, locals []*LocalEntity) (*ConsistencyReport, error) {
	remotes, err := listAll(ctx, pageSize, api.ListFolders)
	if err != nil {
		return nil, fmt.Errorf("listing remote folders: %w", err)
	}

	report := &ConsistencyReport{
		RemoteTotal: len(remotes),
		LocalTotal:  len(locals),
	}

	unclaimed := append([]remote.Entity(nil), remotes...)
	var unmatched []*LocalEntity

	for _, local := range locals {
		if local == nil {
			continue
		}
		if local.RemoteID != "" {
			id := verifier.StripLegacyPrefix(local.RemoteID)
			if idx := indexByRemoteID(unclaimed, id); idx >= 0 {
				unclaimed = append(unclaimed[:idx], unclaimed[idx+1:]...)
				report.Matched++
				continue
			}
		}
		unmatched = append(unmatched, local)
	}

	for _, local := range unmatched {
		if m, ok := matcher.FindMatch(local.DisplayName, unclaimed); ok {
			unclaimed = without(unclaimed, m.Entity.ID)
			report.Matched++
			continue
		}
		report.LocalOnly = append(report.LocalOnly, *local)
	}

	report.RemoteOnly = unclaimed
	return report, nil
}

func indexByRemoteID(list []remote.Entity, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
