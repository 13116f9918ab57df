package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	out      io.Writer
	errOut   io.Writer
	warnings []types.CLIWarning
}

// NewOutputWriter creates a new output writer on stdout/stderr
func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		out:      os.Stdout,
		errOut:   os.Stderr,
		warnings: []types.CLIWarning{},
	}
}

// AddWarning adds a warning to the output
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	if w.format == types.OutputFormatJSON {
		return w.writeJSON(w.envelope(command, data, nil))
	}
	for _, warn := range w.warnings {
		w.Log("warning: %s", warn.Message)
	}
	return w.writeTable(data)
}

// WriteError writes err and returns it again so RunE can propagate the exit code
func (w *OutputWriter) WriteError(command string, err error) error {
	appErr := utils.AsAppError(err)
	if w.format == types.OutputFormatJSON {
		if werr := w.writeJSON(w.envelope(command, nil, []types.ServiceError{appErr.ServiceError})); werr != nil {
			return werr
		}
		return reportedError{appErr}
	}
	fmt.Fprintf(w.errOut, "Error [%s]: %s\n", appErr.ServiceError.Code, appErr.ServiceError.Message)
	return reportedError{appErr}
}

// reportedError is an error already shown to the user
type reportedError struct {
	err *utils.AppError
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func (w *OutputWriter) envelope(command string, data interface{}, errs []types.ServiceError) types.CLIOutput {
	if errs == nil {
		errs = []types.ServiceError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(data interface{}) error {
	if renderable, ok := data.(types.TableRenderable); ok {
		return w.renderTable(renderable.AsTableRenderer())
	}
	if renderer, ok := data.(types.TableRenderer); ok {
		return w.renderTable(renderer)
	}
	switch v := data.(type) {
	case []*types.FileHandle:
		return w.writeFileTable(v)
	case map[string]interface{}:
		return w.writeKeyValueTable(v)
	default:
		return w.writeJSON(w.envelope("unknown", data, nil))
	}
}

func (w *OutputWriter) newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w.out)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.out, renderer.EmptyMessage())
		}
		return nil
	}

	table := w.newTable(renderer.Headers())
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func (w *OutputWriter) writeFileTable(files []*types.FileHandle) error {
	table := w.newTable([]string{"ID", "Name", "Type", "Size", "Modified"})
	for _, f := range files {
		size := "-"
		if f.Size > 0 {
			size = formatSize(f.Size)
		}
		table.Append([]string{
			truncate(f.ID, 15),
			truncate(f.Name, 40),
			truncate(f.MimeType, 30),
			size,
			f.ModifiedTime,
		})
	}
	table.Render()
	return nil
}

func (w *OutputWriter) writeKeyValueTable(data map[string]interface{}) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := w.newTable([]string{"Key", "Value"})
	for _, k := range keys {
		table.Append([]string{k, fmt.Sprintf("%v", data[k])})
	}
	table.Render()
	return nil
}

// Log writes to stderr if not quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.errOut, format+"\n", args...)
	}
}

// Verbose writes to stderr if verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.errOut, "[VERBOSE] "+format+"\n", args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
