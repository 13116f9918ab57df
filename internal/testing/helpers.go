package testing

import (
	"context"

	"github.com/dl-alexandre/batfiles/internal/types"
	"google.golang.org/api/drive/v3"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       types.RequestTypeListOrSearch,
		TraceID:           "test-trace-id",
	}
}

// TestRequestContextWithFiles creates a request context with file IDs
func TestRequestContextWithFiles(fileIDs ...string) *types.RequestContext {
	ctx := TestRequestContext()
	ctx.RequestType = types.RequestTypeGetByID
	ctx.InvolvedFileIDs = fileIDs
	return ctx
}

// TestRequestContextWithParents creates a request context with parent IDs
func TestRequestContextWithParents(parentIDs ...string) *types.RequestContext {
	ctx := TestRequestContext()
	ctx.InvolvedParentIDs = parentIDs
	return ctx
}

// TestFile creates a Drive file for testing
func TestFile(id, name, mimeType string) *drive.File {
	return &drive.File{
		Id:           id,
		Name:         name,
		MimeType:     mimeType,
		Size:         1024,
		ModifiedTime: "2024-01-01T00:00:00Z",
	}
}

// TestFolder creates a Drive folder for testing
func TestFolder(id, name string) *drive.File {
	return &drive.File{
		Id:       id,
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
}

// TestHandle creates a file handle for testing
func TestHandle(id, name string) *types.FileHandle {
	return &types.FileHandle{
		ID:           id,
		Name:         name,
		MimeType:     "application/octet-stream",
		ModifiedTime: "2024-01-01T00:00:00Z",
	}
}
