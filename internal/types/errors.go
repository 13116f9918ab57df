package types

// ServiceError is the stable, serializable description of a failure.
// It is what the HTTP layer and the CLI print; it never carries a stack trace.
type ServiceError struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	HTTPStatus  int                    `json:"httpStatus,omitempty"`
	DriveReason string                 `json:"driveReason,omitempty"`
	Retryable   bool                   `json:"retryable"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// CLIOutput is the JSON envelope written by the CLI
type CLIOutput struct {
	SchemaVersion string         `json:"schemaVersion"`
	TraceID       string         `json:"traceId"`
	Command       string         `json:"command"`
	Data          interface{}    `json:"data"`
	Warnings      []CLIWarning   `json:"warnings"`
	Errors        []ServiceError `json:"errors"`
}

// CLIWarning is a non-fatal notice attached to CLI output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// OutputFormat selects how the CLI renders results
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds the CLI's persistent flags
type GlobalFlags struct {
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	JSON         bool
}
