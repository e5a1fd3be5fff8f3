// Package utils holds the terminal output helpers shared by the commands
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

// Out is where every helper writes; tests swap it for a buffer
var Out io.Writer = os.Stdout

var (
	fgDark  = text.Colors{text.FgHiBlack}
	fgLight = text.Colors{text.FgWhite}
	bold    = text.Colors{text.Bold}
)

// Theme holds the colors used across the CLI output
var Theme = struct {
	Success text.Colors
	Info    text.Colors
	Warning text.Colors
	Error   text.Colors
	Heading text.Colors
	Subtle  text.Colors
	Accent  text.Colors

	Title       text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
}{
	Success: text.Colors{text.FgGreen},
	Info:    text.Colors{text.FgBlue},
	Warning: text.Colors{text.FgYellow},
	Error:   text.Colors{text.FgRed},
	Heading: text.Colors{text.FgHiCyan, text.Bold},
	Subtle:  fgDark,
	Accent:  text.Colors{text.FgCyan},

	Title:       text.Colors{text.FgHiCyan, text.Bold},
	TableHeader: text.Colors{text.FgHiBlue, text.Bold},
	TableBorder: text.Colors{text.FgBlue},
	TableRow:    fgLight,
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
}

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Fprintln(Out, Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintln(Out, Theme.Success.Sprint("✓ ")+message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Fprintln(Out, Theme.Info.Sprint("ℹ ")+message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintln(Out, Theme.Warning.Sprint("⚠ ")+message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintln(Out, Theme.Error.Sprint("✗ ")+message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Out, "%s: %s\n", bold.Sprint(key), value)
}

// PrintKeyValueWithColor prints a key-value pair with colored value
func PrintKeyValueWithColor(key string, value string, colors text.Colors) {
	fmt.Fprintf(Out, "%s: %s\n", bold.Sprint(key), colors.Sprint(value))
}

// TableOptions defines options for table creation
type TableOptions struct {
	Title string
	// MaxCellWidth truncates long cells; zero disables truncation
	MaxCellWidth int
}

// DefaultTableOptions returns default table options
func DefaultTableOptions() TableOptions {
	return TableOptions{MaxCellWidth: 60}
}

// CreateTable creates a new table writer with the CLI style
func CreateTable(opts TableOptions) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(Out)

	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	style := table.StyleLight
	style.Color.Header = Theme.TableHeader
	style.Color.Border = Theme.TableBorder
	style.Color.Row = Theme.TableRow
	style.Color.RowAlternate = Theme.TableAltRow
	style.Title.Colors = Theme.Title
	style.Title.Align = text.AlignCenter
	style.Options.SeparateRows = false
	style.Box.PaddingLeft = " "
	style.Box.PaddingRight = " "

	t.SetStyle(style)
	return t
}

// PrintTable prints a table with headers and rows
func PrintTable(headers []string, rows [][]string, options ...TableOptions) {
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	t := CreateTable(opts)

	headerRow := table.Row{}
	for _, header := range headers {
		headerRow = append(headerRow, header)
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tableRow := table.Row{}
		for _, cell := range row {
			if opts.MaxCellWidth > 0 {
				cell = Truncate(cell, opts.MaxCellWidth)
			}
			tableRow = append(tableRow, cell)
		}
		t.AppendRow(tableRow)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignCenter,
		})
	}
	t.SetColumnConfigs(configs)

	t.Render()
}

// PrintTreeList prints title with items nested beneath it
func PrintTreeList(title string, items []string) {
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedRounded)

	l.AppendItem(title)
	l.Indent()
	for _, item := range items {
		l.AppendItem(item)
	}
	l.UnIndent()

	fmt.Fprintln(Out, l.Render())
}

// Truncate shortens s to width cells, ending in an ellipsis
func Truncate(s string, width int) string {
	if text.RuneWidthWithoutEscSequences(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

// Wrap word-wraps s at width and indents continuation lines
func Wrap(s string, width int, indent string) string {
	lines := strings.Split(wordwrap.String(s, width), "\n")
	return strings.Join(lines, "\n"+indent)
}

// FormatDuration renders d rounded for display
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

// FormatTime renders t in local time, or "-" when unset
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
