package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/batfiles/internal/api"
	"github.com/dl-alexandre/batfiles/internal/bat"
	"github.com/dl-alexandre/batfiles/internal/server"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// fetchConcurrency bounds parallel downloads in fetch
const fetchConcurrency = 3

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List BAT folders",
	Long:  "List folders named SERVER{x}_CLIENT{y}_{batId} under ROOT_FOLDER_ID (or anywhere when unset)",
	Args:  cobra.NoArgs,
	RunE:  runFolders,
}

var filesCmd = &cobra.Command{
	Use:   "files BATID",
	Short: "Report the required files of a BAT folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFiles,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch BATID",
	Short: "Download the required files of a BAT folder",
	Long:  "Download every present required file into DEST/SERVER{x}_CLIENT{y}_{batId}/",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var (
	keyServer int
	keyClient int
	fetchDest string
)

func init() {
	for _, c := range []*cobra.Command{filesCmd, fetchCmd} {
		c.Flags().IntVar(&keyServer, "server", 0, "Server number (required)")
		c.Flags().IntVar(&keyClient, "client", 0, "Client number (required)")
		_ = c.MarkFlagRequired("server")
		_ = c.MarkFlagRequired("client")
	}
	fetchCmd.Flags().StringVar(&fetchDest, "dest", ".", "Destination directory")

	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(fetchCmd)
}

func keyFromArgs(batID string) types.FolderKey {
	return types.FolderKey{Server: keyServer, Client: keyClient, BatID: bat.NormalizeBatID(batID)}
}

// catalogResult adds the completeness flag to the report's JSON
type catalogResult struct {
	*types.CatalogReport
	Complete bool `json:"complete"`
}

func runFolders(cmd *cobra.Command, args []string) error {
	out := newOutput()
	ctx := cmd.Context()

	a, err := driveApp(ctx)
	if err != nil {
		return out.WriteError("folders", err)
	}
	reqCtx := api.NewRequestContext(ctx, a.cfg.RootFolderID, types.RequestTypeListOrSearch)
	folders, err := a.folders.ListBatFolders(ctx, reqCtx, a.cfg.RootFolderID)
	if err != nil {
		return out.WriteError("folders", err)
	}
	if folders == nil {
		folders = []*types.RemoteFolder{}
	}
	return out.WriteSuccess("folders", &types.FolderList{Folders: folders, Total: len(folders)})
}

func runFiles(cmd *cobra.Command, args []string) error {
	out := newOutput()
	ctx := cmd.Context()

	a, err := driveApp(ctx)
	if err != nil {
		return out.WriteError("files", err)
	}
	report, err := a.service.ListFiles(ctx, keyFromArgs(args[0]))
	if err != nil {
		return out.WriteError("files", err)
	}
	for _, name := range report.Missing {
		out.AddWarning(utils.ErrCodeFileNotFound, "missing "+name, "warning")
	}
	return out.WriteSuccess("files", catalogResult{CatalogReport: report, Complete: report.Complete()})
}

func runFetch(cmd *cobra.Command, args []string) error {
	out := newOutput()
	ctx := cmd.Context()

	a, err := driveApp(ctx)
	if err != nil {
		return out.WriteError("fetch", err)
	}
	summary, err := fetchFolder(ctx, a.service, keyFromArgs(args[0]), fetchDest)
	if err != nil {
		return out.WriteError("fetch", err)
	}
	for _, name := range summary.Missing {
		out.AddWarning(utils.ErrCodeFileNotFound, "not downloaded, missing in Drive: "+name, "warning")
	}
	out.Log("Downloaded %d file(s) to %s", len(summary.Files), summary.Dir)
	return out.WriteSuccess("fetch", summary)
}

type fetchedFile struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

type fetchSummary struct {
	Folder  string         `json:"folder"`
	Dir     string         `json:"dir"`
	Files   []*fetchedFile `json:"files"`
	Missing []string       `json:"missing"`
}

func (s *fetchSummary) AsTableRenderer() types.TableRenderer {
	return fetchTable{s}
}

type fetchTable struct {
	summary *fetchSummary
}

func (t fetchTable) Headers() []string {
	return []string{"File", "ID", "Size", "Path"}
}

func (t fetchTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.summary.Files))
	for _, f := range t.summary.Files {
		rows = append(rows, []string{f.Name, f.ID, formatSize(f.Bytes), f.Path})
	}
	return rows
}

func (t fetchTable) EmptyMessage() string {
	return "Nothing downloaded."
}

// fetchFolder downloads every present required file of key into dest/<folder name>.
// Files are written to a temp name and renamed once their content is verified.
func fetchFolder(ctx context.Context, svc server.BatService, key types.FolderKey, dest string) (*fetchSummary, error) {
	report, err := svc.ListFiles(ctx, key)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(dest, report.Folder.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.NewAppError(utils.NewServiceError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("cannot create %s: %v", dir, err)).WithContext("field", "dest").Build()).WithCause(err)
	}

	summary := &fetchSummary{Folder: report.Folder.Name, Dir: dir, Missing: report.Missing}
	results := make([]*fetchedFile, len(utils.RequiredFileSet))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, name := range utils.RequiredFileSet {
		i, name := i, name
		handle, ok := report.Present[name]
		if !ok {
			continue
		}
		g.Go(func() error {
			n, err := downloadTo(gctx, svc, handle.ID, name, filepath.Join(dir, name))
			if err != nil {
				return err
			}
			results[i] = &fetchedFile{Name: name, ID: handle.ID, Path: filepath.Join(dir, name), Bytes: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if r != nil {
			summary.Files = append(summary.Files, r)
		}
	}
	if summary.Files == nil {
		summary.Files = []*fetchedFile{}
	}
	return summary, nil
}

func downloadTo(ctx context.Context, svc server.BatService, fileID, name, path string) (int64, error) {
	dl, err := svc.DownloadFile(ctx, fileID, name)
	if err != nil {
		return 0, err
	}
	defer dl.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*.part")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, dl.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	return n, nil
}
