package types

// RequestType classifies a Drive API call for logging and error context
type RequestType string

const (
	RequestTypeListOrSearch RequestType = "ListOrSearch"
	RequestTypeGetByID      RequestType = "GetByID"
	RequestTypeDownload     RequestType = "Download"
	RequestTypeAuth         RequestType = "Auth"
)

// RequestContext carries per-operation metadata through the Drive adapter
type RequestContext struct {
	RootFolderID      string      `json:"rootFolderId,omitempty"`
	InvolvedFileIDs   []string    `json:"involvedFileIds"`
	InvolvedParentIDs []string    `json:"involvedParentIds"`
	RequestType       RequestType `json:"requestType"`
	TraceID           string      `json:"traceId"`
}
