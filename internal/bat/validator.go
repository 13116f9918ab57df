package bat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

// ChildLister lists the children of a folder
type ChildLister interface {
	ListChildren(ctx context.Context, reqCtx *types.RequestContext, folderID string) ([]*types.FileHandle, error)
}

// Validator checks a folder's contents against the required file set
type Validator struct {
	children ChildLister
	rootID   string
	logger   logging.Logger
}

// NewValidator creates a validator
func NewValidator(children ChildLister, rootID string, logger logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Validator{children: children, rootID: rootID, logger: logger}
}

// Validate lists the folder and partitions its children. Missing files are
// reported, not returned as an error.
func (v *Validator) Validate(ctx context.Context, folder *types.RemoteFolder) (*types.CatalogReport, error) {
	reqCtx := api.NewRequestContext(ctx, v.rootID, types.RequestTypeListOrSearch)

	children, err := v.children.ListChildren(ctx, reqCtx, folder.ID)
	if err != nil {
		return nil, err
	}

	report := Partition(folder, children)
	v.logger.WithTraceID(reqCtx.TraceID).Debug("Folder validated",
		logging.F("folderId", folder.ID),
		logging.F("children", len(children)),
		logging.F("missing", report.Missing),
	)
	return report, nil
}

// Partition splits children into present and missing required files.
// keys(Present) and Missing are disjoint and together equal RequiredFileSet.
func Partition(folder *types.RemoteFolder, children []*types.FileHandle) *types.CatalogReport {
	report := &types.CatalogReport{
		Folder:  folder,
		Present: make(map[string]*types.FileHandle),
		Missing: []string{},
	}

	byName := make(map[string][]*types.FileHandle)
	folded := make(map[string][]string)
	for _, c := range children {
		if isContainer(c) {
			report.Other = append(report.Other, c)
			continue
		}
		if utils.IsRequiredFile(c.Name) {
			byName[c.Name] = append(byName[c.Name], c)
			continue
		}
		report.Other = append(report.Other, c)
		for _, required := range utils.RequiredFileSet {
			if strings.EqualFold(c.Name, required) {
				folded[required] = append(folded[required], c.Name)
			}
		}
	}

	for _, required := range utils.RequiredFileSet {
		handles := byName[required]
		if len(handles) == 0 {
			report.Missing = append(report.Missing, required)
			if alt := folded[required]; len(alt) > 0 {
				if report.CaseMismatches == nil {
					report.CaseMismatches = make(map[string][]string)
				}
				sort.Strings(alt)
				report.CaseMismatches[required] = alt
			}
			continue
		}
		report.Present[required] = pickLatest(handles)
		if len(handles) > 1 {
			if report.Duplicates == nil {
				report.Duplicates = make(map[string][]string)
			}
			ids := make([]string, len(handles))
			for i, h := range handles {
				ids[i] = h.ID
			}
			sort.Strings(ids)
			report.Duplicates[required] = ids
		}
	}

	sort.Slice(report.Other, func(i, j int) bool {
		a, b := report.Other[i], report.Other[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return report
}

// pickLatest returns the most recently modified handle; ties go to the lowest ID
func pickLatest(handles []*types.FileHandle) *types.FileHandle {
	best := handles[0]
	for _, h := range handles[1:] {
		switch cmp := compareModified(h.ModifiedTime, best.ModifiedTime); {
		case cmp > 0:
			best = h
		case cmp == 0 && h.ID < best.ID:
			best = h
		}
	}
	return best
}

func compareModified(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return ta.Compare(tb)
}

// isContainer reports folders and shortcuts, which never satisfy a required file
func isContainer(h *types.FileHandle) bool {
	return h.MimeType == utils.MimeTypeFolder || h.MimeType == utils.MimeTypeShortcut
}
