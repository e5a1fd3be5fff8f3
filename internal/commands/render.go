package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/tildaslashalef/reposync/internal/reconcile"
	"github.com/tildaslashalef/reposync/internal/utils"
)

func statusColors(s reconcile.SyncStatus) text.Colors {
	switch s {
	case reconcile.StatusSynced:
		return utils.Theme.Success
	case reconcile.StatusError:
		return utils.Theme.Error
	case reconcile.StatusPending:
		return utils.Theme.Warning
	default:
		return utils.Theme.Subtle
	}
}

func outcome(r *reconcile.Result) string {
	switch {
	case !r.Success:
		return utils.Theme.Error.Sprint("failed")
	case r.PartialChildSync:
		return utils.Theme.Warning.Sprint("partial")
	case r.Ambiguous:
		return utils.Theme.Warning.Sprint("ambiguous")
	default:
		return utils.Theme.Success.Sprint("ok")
	}
}

func printEntities(title string, entities []*reconcile.LocalEntity) {
	if len(entities) == 0 {
		utils.PrintInfo("No entries in the local cache")
		return
	}

	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []string{
			e.DisplayName,
			e.LocalID,
			orDash(e.RemoteID),
			statusColors(e.SyncStatus).Sprint(string(e.SyncStatus)),
			utils.FormatTime(e.LastSyncedAt),
			orDash(e.LastError),
		})
	}

	utils.PrintTable(
		[]string{"Name", "Local ID", "Remote ID", "Status", "Last synced", "Last error"},
		rows,
		utils.TableOptions{Title: title, MaxCellWidth: 48},
	)
}

func printSummary(s *reconcile.BatchSummary) {
	if len(s.Results) > 0 {
		rows := make([][]string, 0, len(s.Results))
		for _, r := range s.Results {
			rows = append(rows, resultRow(r, ""))
			for _, child := range r.Children {
				rows = append(rows, resultRow(child, "  └ "))
			}
		}
		utils.PrintTable(
			[]string{"Name", "Kind", "Action", "Outcome", "Remote ID", "Match", "Detail"},
			rows,
			utils.TableOptions{Title: "Reconciliation " + s.PassID, MaxCellWidth: 48},
		)
	}

	utils.PrintKeyValue("Folders", fmt.Sprintf("%d attempted, %s, %s",
		s.Attempted,
		color.GreenString("%d succeeded", s.Succeeded),
		failedText(s.Failed),
	))
	if s.ChildrenAttempted > 0 {
		utils.PrintKeyValue("Files", fmt.Sprintf("%d attempted, %s, %s",
			s.ChildrenAttempted,
			color.GreenString("%d succeeded", s.ChildrenSucceeded),
			failedText(s.ChildrenFailed),
		))
	}
	utils.PrintKeyValue("Duration", utils.FormatDuration(s.Duration))

	if s.Cancelled {
		utils.PrintWarning(fmt.Sprintf("Pass cancelled, %d folder(s) not attempted", s.Skipped))
	}
	if s.Consistency != nil {
		printConsistency(s.Consistency)
	}
}

func failedText(n int) string {
	if n == 0 {
		return "0 failed"
	}
	return color.RedString("%d failed", n)
}

func resultRow(r *reconcile.Result, indent string) []string {
	detail := r.ErrorDetail
	if detail == "" {
		detail = r.Message
	}
	match := "-"
	if r.MatchTier != reconcile.TierNone {
		match = r.MatchTier.String()
	}
	return []string{
		indent + r.Name,
		string(r.Kind),
		string(r.Action),
		outcome(r),
		orDash(r.RemoteID),
		match,
		orDash(detail),
	}
}

func printConsistency(report *reconcile.ConsistencyReport) {
	utils.PrintHeading("Consistency")
	utils.PrintKeyValue("Remote folders", fmt.Sprint(report.RemoteTotal))
	utils.PrintKeyValue("Local folders", fmt.Sprint(report.LocalTotal))
	utils.PrintKeyValue("Matched", fmt.Sprint(report.Matched))

	if report.InSync() {
		utils.PrintSuccess("Local cache and remote are in sync")
		return
	}

	if len(report.RemoteOnly) > 0 {
		items := make([]string, 0, len(report.RemoteOnly))
		for _, e := range report.RemoteOnly {
			items = append(items, fmt.Sprintf("%s (%s)", e.Name, e.ID))
		}
		utils.PrintTreeList(utils.Theme.Warning.Sprint("Only on remote"), items)
	}
	if len(report.LocalOnly) > 0 {
		items := make([]string, 0, len(report.LocalOnly))
		for _, e := range report.LocalOnly {
			items = append(items, fmt.Sprintf("%s (%s)", e.DisplayName, e.LocalID))
		}
		utils.PrintTreeList(utils.Theme.Warning.Sprint("Only in local cache"), items)
	}
}

func printJournal(entries []*reconcile.JournalEntry) {
	if len(entries) == 0 {
		utils.PrintInfo("No reconciliation history yet")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := utils.Theme.Success.Sprint("ok")
		if !e.Success {
			result = utils.Theme.Error.Sprint(string(e.ErrorKind))
		} else if e.ErrorKind != "" {
			result = utils.Theme.Warning.Sprint(string(e.ErrorKind))
		}
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Kind),
			e.Name,
			string(e.Action),
			result,
			orDash(e.RemoteID),
			orDash(e.ErrorDetail),
		})
	}

	utils.PrintTable(
		[]string{"When", "Kind", "Name", "Action", "Result", "Remote ID", "Detail"},
		rows,
		utils.TableOptions{Title: "Recent reconciliations", MaxCellWidth: 40},
	)
}

func printAttributes(attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		utils.PrintKeyValue("  "+k, fmt.Sprint(attrs[k]))
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Fprintln(utils.Out, string(data))
	return nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
