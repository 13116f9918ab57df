package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/bat"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/go-chi/chi/v5"
)

// copyBufferSize is the chunk size used when relaying file content
const copyBufferSize = 32 * 1024

// BatService is the retrieval core behind the API
type BatService interface {
	ListFiles(ctx context.Context, key types.FolderKey) (*types.CatalogReport, error)
	DownloadFile(ctx context.Context, fileID, expectedName string) (*bat.Download, error)
}

// DebugLister backs the development-only listing routes
type DebugLister interface {
	ListBatFolders(ctx context.Context, reqCtx *types.RequestContext, parentID string) ([]*types.RemoteFolder, error)
	ListChildren(ctx context.Context, reqCtx *types.RequestContext, folderID string) ([]*types.FileHandle, error)
}

type handlers struct {
	svc     BatService
	debug   DebugLister
	rootID  string
	version string
	logger  logging.Logger
	now     func() time.Time
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type filesResponse struct {
	Success    bool                 `json:"success"`
	FolderName string               `json:"folderName"`
	FolderID   string               `json:"folderId"`
	Complete   bool                 `json:"complete"`
	Report     *types.CatalogReport `json:"report"`
}

type foldersResponse struct {
	Success bool                  `json:"success"`
	Total   int                   `json:"total"`
	Folders []*types.RemoteFolder `json:"folders"`
}

type itemsResponse struct {
	Success bool                `json:"success"`
	Total   int                 `json:"total"`
	Items   []*types.FileHandle `json:"items"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Status:    "ok",
		Version:   h.version,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) batFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := bat.ParseKey(q.Get("server"), q.Get("client"), chi.URLParam(r, "batId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	report, err := h.svc.ListFiles(r.Context(), key)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, filesResponse{
		Success:    true,
		FolderName: report.Folder.Name,
		FolderID:   report.Folder.ID,
		Complete:   report.Complete(),
		Report:     report,
	})
}

func (h *handlers) file(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	dl, err := h.svc.DownloadFile(r.Context(), fileID, r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer dl.Body.Close()

	header := w.Header()
	header.Set("Content-Type", dl.ContentType)
	header.Set("Content-Disposition", contentDisposition(dl.Filename))
	header.Set("X-Content-Type-Options", "nosniff")
	if dl.Size >= 0 {
		header.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	// send headers now so a later abort reaches the client as a broken body
	_ = http.NewResponseController(w).Flush()

	n, err := io.CopyBuffer(w, dl.Body, make([]byte, copyBufferSize))
	if err != nil {
		logger := h.logger.WithContext(r.Context())
		if errors.Is(r.Context().Err(), context.Canceled) {
			logger.Info("client went away during download", logging.F("fileId", fileID), logging.F("bytes", n))
			return
		}
		logger.Error("download aborted",
			logging.F("fileId", fileID),
			logging.F("bytes", n),
			logging.F("error", err.Error()),
		)
		// headers are gone; abort the connection so the client sees a failed transfer
		panic(http.ErrAbortHandler)
	}
}

// contentDisposition falls back to a bare "inline" when the name cannot be encoded
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("inline", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "inline"
}

func (h *handlers) debugFolders(w http.ResponseWriter, r *http.Request) {
	reqCtx := api.NewRequestContext(r.Context(), h.rootID, types.RequestTypeListOrSearch)
	folders, err := h.debug.ListBatFolders(r.Context(), reqCtx, h.rootID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if folders == nil {
		folders = []*types.RemoteFolder{}
	}
	writeJSON(w, http.StatusOK, foldersResponse{Success: true, Total: len(folders), Folders: folders})
}

func (h *handlers) debugAllItems(w http.ResponseWriter, r *http.Request) {
	parent := h.rootID
	if parent == "" {
		parent = "root"
	}
	reqCtx := api.NewRequestContext(r.Context(), h.rootID, types.RequestTypeListOrSearch)
	items, err := h.debug.ListChildren(r.Context(), reqCtx, parent)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []*types.FileHandle{}
	}
	writeJSON(w, http.StatusOK, itemsResponse{Success: true, Total: len(items), Items: items})
}
