package folders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dl-alexandre/batfiles/internal/api"
	testhelpers "github.com/dl-alexandre/batfiles/internal/testing"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
)

func newTestManager(t *testing.T, srv *testhelpers.DriveServer) *Manager {
	t.Helper()
	client := api.NewClient(srv.Service(t), api.ClientOptions{MaxRetries: 2, RetryDelay: time.Millisecond})
	return NewManager(client)
}

func TestEscapeQueryString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER1_CLIENT2_121", "SERVER1_CLIENT2_121"},
		{"it's", `it\'s`},
		{`back\slash`, `back\\slash`},
		{`\'`, `\\\'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeQueryString(tt.in), "input %q", tt.in)
	}
}

func TestConvertDriveFile(t *testing.T) {
	f := testhelpers.TestFile("file123", "Sensor.txt", "text/plain")
	f.Md5Checksum = "abc"

	got := convertDriveFile(f)
	assert.Equal(t, &types.FileHandle{
		ID:           "file123",
		Name:         "Sensor.txt",
		MimeType:     "text/plain",
		Size:         1024,
		MD5Checksum:  "abc",
		ModifiedTime: "2024-01-01T00:00:00Z",
	}, got)

	folder := convertDriveFile(testhelpers.TestFolder("f1", "SERVER1_CLIENT1_1"))
	assert.Equal(t, utils.MimeTypeFolder, folder.MimeType)
	assert.Zero(t, folder.Size)

	assert.NotPanics(t, func() { convertDriveFile(&drive.File{}) })
}

func TestFindByName(t *testing.T) {
	srv := testhelpers.NewDriveServer(t)
	srv.AddFolder("root-a", "Deployments")
	srv.AddFolder("f1", "SERVER1_CLIENT2_121", "root-a")
	srv.AddFolder("f2", "SERVER1_CLIENT2_121", "elsewhere")
	srv.AddFolder("f3", "SERVER1_CLIENT2_1210", "root-a")
	srv.Add(&testhelpers.DriveFile{ID: "trashed", Name: "SERVER1_CLIENT2_121", MimeType: utils.MimeTypeFolder, Trashed: true})
	srv.AddFile("file", "SERVER1_CLIENT2_121", "root-a", []byte("not a folder"))

	m := newTestManager(t, srv)

	t.Run("unscoped", func(t *testing.T) {
		got, err := m.FindByName(context.Background(), testhelpers.TestRequestContext(), "SERVER1_CLIENT2_121", "")
		require.NoError(t, err)
		ids := folderIDs(got)
		assert.ElementsMatch(t, []string{"f1", "f2"}, ids)
	})

	t.Run("scoped to root", func(t *testing.T) {
		reqCtx := testhelpers.TestRequestContext()
		got, err := m.FindByName(context.Background(), reqCtx, "SERVER1_CLIENT2_121", "root-a")
		require.NoError(t, err)
		assert.Equal(t, []string{"f1"}, folderIDs(got))
		assert.Contains(t, reqCtx.InvolvedParentIDs, "root-a")
	})

	t.Run("quotes are escaped", func(t *testing.T) {
		srv.AddFolder("q1", "SERVER1_CLIENT1_it's", "root-a")
		got, err := m.FindByName(context.Background(), testhelpers.TestRequestContext(), "SERVER1_CLIENT1_it's", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"q1"}, folderIDs(got))
	})

	t.Run("no match", func(t *testing.T) {
		got, err := m.FindByName(context.Background(), testhelpers.TestRequestContext(), "SERVER9_CLIENT9_9", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestListChildren_FollowsPages(t *testing.T) {
	srv := testhelpers.NewDriveServer(t)
	srv.PageSize = 2
	srv.AddFolder("folder", "SERVER1_CLIENT1_7")
	for i := 0; i < 5; i++ {
		srv.AddFile(fmt.Sprintf("c%d", i), fmt.Sprintf("extra-%d.txt", i), "folder", []byte("x"))
	}
	srv.Add(&testhelpers.DriveFile{ID: "gone", Name: "Sensor.txt", Parents: []string{"folder"}, Trashed: true})

	m := newTestManager(t, srv)
	children, err := m.ListChildren(context.Background(), testhelpers.TestRequestContext(), "folder")
	require.NoError(t, err)
	require.Len(t, children, 5)
	assert.Equal(t, int64(1), children[0].Size)
	assert.NotEmpty(t, children[0].MD5Checksum)
	assert.Equal(t, 3, srv.RequestCount())
}

func TestListChildren_TransientPageRetried(t *testing.T) {
	srv := testhelpers.NewDriveServer(t)
	srv.PageSize = 1
	srv.AddFolder("folder", "SERVER1_CLIENT1_7")
	srv.AddFile("a", "Camera.jpg", "folder", []byte("x"))
	srv.AddFile("b", "Sensor.txt", "folder", []byte("y"))
	srv.FailNext(testhelpers.Fault{Status: 503, Reason: "backendError"})

	m := newTestManager(t, srv)
	children, err := m.ListChildren(context.Background(), testhelpers.TestRequestContext(), "folder")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestListBatFolders(t *testing.T) {
	srv := testhelpers.NewDriveServer(t)
	srv.AddFolder("b", "SERVER2_CLIENT1_BAT9")
	srv.AddFolder("a", "SERVER1_CLIENT1_121")
	srv.AddFolder("x", "SERVERLESS notes")
	srv.AddFolder("y", "Photos")

	m := newTestManager(t, srv)
	got, err := m.ListBatFolders(context.Background(), testhelpers.TestRequestContext(), "")
	require.NoError(t, err)

	names := make([]string, 0, len(got))
	for _, f := range got {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"SERVER1_CLIENT1_121", "SERVER2_CLIENT1_BAT9"}, names)
}

func TestFindByName_PermissionDenied(t *testing.T) {
	srv := testhelpers.NewDriveServer(t)
	srv.FailNext(testhelpers.Fault{Status: 403, Reason: "forbidden"})

	m := newTestManager(t, srv)
	_, err := m.FindByName(context.Background(), testhelpers.TestRequestContext(), "SERVER1_CLIENT1_1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrPermission)
}

func folderIDs(folders []*types.RemoteFolder) []string {
	ids := make([]string, 0, len(folders))
	for _, f := range folders {
		ids = append(ids, f.ID)
	}
	return ids
}
