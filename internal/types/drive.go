package types

import (
	"fmt"
	"sort"
	"strings"
)

// FolderKey identifies one logical deployment unit (a BAT folder)
type FolderKey struct {
	Server int    `json:"server"`
	Client int    `json:"client"`
	BatID  string `json:"batId"`
}

// FolderName returns the exact Drive folder name for the key.
// No case or whitespace normalization is applied.
func (k FolderKey) FolderName() string {
	return fmt.Sprintf("SERVER%d_CLIENT%d_%s", k.Server, k.Client, k.BatID)
}

func (k FolderKey) String() string {
	return k.FolderName()
}

// RemoteFolder is a handle to a Drive folder. Owned by Drive, never mutated here.
type RemoteFolder struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// FileHandle references a remote file for the lifetime of one request
type FileHandle struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size,omitempty"`
	MD5Checksum  string `json:"md5Checksum,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// CatalogReport is the partition of a folder's children against the required file set
type CatalogReport struct {
	Folder  *RemoteFolder          `json:"folder"`
	Present map[string]*FileHandle `json:"present"`
	Missing []string               `json:"missing"`

	// CaseMismatches maps a required name to children that match it only case-insensitively
	CaseMismatches map[string][]string `json:"caseMismatches,omitempty"`
	// Duplicates maps a required name to every file ID carrying it, when more than one exists
	Duplicates map[string][]string `json:"duplicates,omitempty"`
	// Other lists children outside the required set
	Other []*FileHandle `json:"other,omitempty"`
}

// Complete reports whether every required file is present
func (r *CatalogReport) Complete() bool {
	return len(r.Missing) == 0
}

func (r *CatalogReport) AsTableRenderer() TableRenderer {
	return catalogTable{report: r}
}

type catalogTable struct {
	report *CatalogReport
}

func (t catalogTable) Headers() []string {
	return []string{"File", "Status", "ID", "MIME Type", "Modified"}
}

func (t catalogTable) Rows() [][]string {
	var rows [][]string
	names := make([]string, 0, len(t.report.Present))
	for name := range t.report.Present {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := t.report.Present[name]
		rows = append(rows, []string{name, "present", h.ID, h.MimeType, h.ModifiedTime})
	}
	for _, name := range t.report.Missing {
		status := "missing"
		if alt, ok := t.report.CaseMismatches[name]; ok {
			status = "missing (found " + strings.Join(alt, ", ") + ")"
		}
		rows = append(rows, []string{name, status, "-", "-", "-"})
	}
	return rows
}

func (t catalogTable) EmptyMessage() string {
	return "No files."
}

// FolderList is a list of BAT folders, used by the debug listing
type FolderList struct {
	Folders []*RemoteFolder `json:"folders"`
	Total   int             `json:"total"`
}

func (l *FolderList) AsTableRenderer() TableRenderer {
	return folderTable{list: l}
}

type folderTable struct {
	list *FolderList
}

func (t folderTable) Headers() []string {
	return []string{"ID", "Name", "Modified"}
}

func (t folderTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.list.Folders))
	for _, f := range t.list.Folders {
		rows = append(rows, []string{f.ID, f.Name, f.ModifiedTime})
	}
	return rows
}

func (t folderTable) EmptyMessage() string {
	return "No BAT folders found."
}
