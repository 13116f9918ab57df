package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

// MockFolders mocks folder search and listing
type MockFolders struct {
	FindByNameFunc     func(name, parentID string) ([]*types.RemoteFolder, error)
	ListChildrenFunc   func(folderID string) ([]*types.FileHandle, error)
	ListBatFoldersFunc func(parentID string) ([]*types.RemoteFolder, error)

	mu    sync.Mutex
	calls []string
}

// FindByName mocks a folder search
func (m *MockFolders) FindByName(ctx context.Context, reqCtx *types.RequestContext, name, parentID string) ([]*types.RemoteFolder, error) {
	m.record("FindByName:" + name)
	if m.FindByNameFunc != nil {
		return m.FindByNameFunc(name, parentID)
	}
	return nil, nil
}

// ListChildren mocks listing a folder
func (m *MockFolders) ListChildren(ctx context.Context, reqCtx *types.RequestContext, folderID string) ([]*types.FileHandle, error) {
	m.record("ListChildren:" + folderID)
	if m.ListChildrenFunc != nil {
		return m.ListChildrenFunc(folderID)
	}
	return nil, nil
}

// ListBatFolders mocks the BAT folder listing
func (m *MockFolders) ListBatFolders(ctx context.Context, reqCtx *types.RequestContext, parentID string) ([]*types.RemoteFolder, error) {
	m.record("ListBatFolders")
	if m.ListBatFoldersFunc != nil {
		return m.ListBatFoldersFunc(parentID)
	}
	return nil, nil
}

// Calls returns the recorded calls in order
func (m *MockFolders) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockFolders) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// MockFiles mocks file metadata and content retrieval
type MockFiles struct {
	GetFunc  func(fileID string) (*types.FileHandle, error)
	OpenFunc func(fileID string) (io.ReadCloser, error)

	// Files backs the default behavior when no func is set
	Files    map[string]*types.FileHandle
	Contents map[string][]byte
}

// Get mocks a metadata lookup
func (m *MockFiles) Get(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*types.FileHandle, error) {
	if m.GetFunc != nil {
		return m.GetFunc(fileID)
	}
	if h, ok := m.Files[fileID]; ok {
		return h, nil
	}
	return nil, notFound(fileID)
}

// Open mocks opening a content stream
func (m *MockFiles) Open(ctx context.Context, reqCtx *types.RequestContext, fileID string) (io.ReadCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(fileID)
	}
	if c, ok := m.Contents[fileID]; ok {
		return io.NopCloser(strings.NewReader(string(c))), nil
	}
	return nil, notFound(fileID)
}

func notFound(fileID string) error {
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeFileNotFound, "File not found: "+fileID).
		WithContext("fileId", fileID).
		Build())
}
