package bat

import (
	"context"
	"fmt"
	"testing"

	"github.com/dl-alexandre/batfiles/internal/testing/mocks"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderName(t *testing.T) {
	tests := []struct {
		key  types.FolderKey
		want string
	}{
		{types.FolderKey{Server: 1, Client: 1, BatID: "121"}, "SERVER1_CLIENT1_121"},
		{types.FolderKey{Server: 2, Client: 5, BatID: "999"}, "SERVER2_CLIENT5_999"},
		{types.FolderKey{Server: 10, Client: 3, BatID: "abc-DEF"}, "SERVER10_CLIENT3_abc-DEF"},
		{types.FolderKey{Server: 1, Client: 1, BatID: " 7 "}, "SERVER1_CLIENT1_ 7 "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.key.FolderName())
		assert.Equal(t, tt.key.FolderName(), tt.key.FolderName())
	}

	for s := 1; s <= 5; s++ {
		for c := 1; c <= 5; c++ {
			key := types.FolderKey{Server: s, Client: c, BatID: "x"}
			assert.Equal(t, fmt.Sprintf("SERVER%d_CLIENT%d_x", s, c), key.FolderName())
			assert.True(t, utils.BatFolderPattern.MatchString(key.FolderName()))
		}
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		client  string
		batID   string
		want    types.FolderKey
		wantErr bool
	}{
		{"plain", "1", "1", "121", types.FolderKey{Server: 1, Client: 1, BatID: "121"}, false},
		{"bat prefix", "2", "3", "BAT121", types.FolderKey{Server: 2, Client: 3, BatID: "121"}, false},
		{"bare prefix kept", "2", "3", "BAT", types.FolderKey{Server: 2, Client: 3, BatID: "BAT"}, false},
		{"lowercase prefix kept", "2", "3", "bat121", types.FolderKey{Server: 2, Client: 3, BatID: "bat121"}, false},
		{"missing server", "", "1", "121", types.FolderKey{}, true},
		{"missing client", "1", "", "121", types.FolderKey{}, true},
		{"zero server", "0", "1", "121", types.FolderKey{}, true},
		{"negative client", "1", "-4", "121", types.FolderKey{}, true},
		{"non numeric", "one", "1", "121", types.FolderKey{}, true},
		{"empty id", "1", "1", "", types.FolderKey{}, true},
		{"slash in id", "1", "1", "a/b", types.FolderKey{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.server, tt.client, tt.batID)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, utils.ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	key := types.FolderKey{Server: 1, Client: 1, BatID: "121"}

	tests := []struct {
		name      string
		found     []*types.RemoteFolder
		wantID    string
		wantErr   error
		wantCode  string
		wantInMsg string
	}{
		{
			name:   "exactly one",
			found:  []*types.RemoteFolder{{ID: "f1", Name: "SERVER1_CLIENT1_121"}},
			wantID: "f1",
		},
		{
			name:      "none",
			wantErr:   utils.ErrNotFound,
			wantCode:  utils.ErrCodeFolderNotFound,
			wantInMsg: "SERVER1_CLIENT1_121",
		},
		{
			name: "two",
			found: []*types.RemoteFolder{
				{ID: "f9", Name: "SERVER1_CLIENT1_121"},
				{ID: "f2", Name: "SERVER1_CLIENT1_121"},
			},
			wantErr:   utils.ErrAmbiguous,
			wantCode:  utils.ErrCodeAmbiguousMatch,
			wantInMsg: "SERVER1_CLIENT1_121",
		},
		{
			name: "loose match filtered out",
			found: []*types.RemoteFolder{
				{ID: "f1", Name: "SERVER1_CLIENT1_121"},
				{ID: "f2", Name: "server1_client1_121"},
			},
			wantID: "f1",
		},
		{
			name:     "only loose match",
			found:    []*types.RemoteFolder{{ID: "f2", Name: "Server1_Client1_121"}},
			wantErr:  utils.ErrNotFound,
			wantCode: utils.ErrCodeFolderNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folders := &mocks.MockFolders{
				FindByNameFunc: func(name, parentID string) ([]*types.RemoteFolder, error) {
					assert.Equal(t, "SERVER1_CLIENT1_121", name)
					assert.Equal(t, "root-x", parentID)
					return tt.found, nil
				},
			}
			r := NewResolver(folders, "root-x", nil)

			got, err := r.Resolve(context.Background(), key)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				appErr := utils.AsAppError(err)
				assert.Equal(t, tt.wantCode, appErr.ServiceError.Code)
				assert.Contains(t, appErr.Error(), tt.wantInMsg)
				assert.Equal(t, "SERVER1_CLIENT1_121", appErr.ServiceError.Context["folderName"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestResolve_AmbiguousListsCandidates(t *testing.T) {
	folders := &mocks.MockFolders{
		FindByNameFunc: func(name, parentID string) ([]*types.RemoteFolder, error) {
			return []*types.RemoteFolder{
				{ID: "zzz", Name: name},
				{ID: "aaa", Name: name},
			}, nil
		},
	}
	_, err := NewResolver(folders, "", nil).Resolve(context.Background(), types.FolderKey{Server: 3, Client: 1, BatID: "5"})
	require.Error(t, err)
	assert.Equal(t, []string{"aaa", "zzz"}, utils.AsAppError(err).ServiceError.Context["candidateIds"])
}

func TestResolve_InvalidKeySkipsDrive(t *testing.T) {
	folders := &mocks.MockFolders{}
	_, err := NewResolver(folders, "", nil).Resolve(context.Background(), types.FolderKey{Server: 0, Client: 1, BatID: "5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrInvalid)
	assert.Empty(t, folders.Calls())
}

func TestResolve_PropagatesDriveErrors(t *testing.T) {
	driveErr := utils.NewAppError(utils.NewServiceError(utils.ErrCodeRateLimited, "slow down").Build())
	folders := &mocks.MockFolders{
		FindByNameFunc: func(string, string) ([]*types.RemoteFolder, error) { return nil, driveErr },
	}
	_, err := NewResolver(folders, "", nil).Resolve(context.Background(), types.FolderKey{Server: 1, Client: 1, BatID: "5"})
	assert.ErrorIs(t, err, utils.ErrTransient)
}
