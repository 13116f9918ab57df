package bat

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/batfiles/internal/utils"
)

// ContentTypeFor infers the served content type from the file extension,
// falling back to Drive's MIME type and then application/octet-stream.
func ContentTypeFor(name, driveMimeType string) string {
	if ct, ok := utils.ExtensionContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	if driveMimeType != "" && !utils.IsWorkspaceMimeType(driveMimeType) {
		return driveMimeType
	}
	return utils.ContentTypeOctetStream
}

// verifyingReader checks length and MD5 of a stream against Drive's metadata.
// A mismatch is returned from Read in place of io.EOF.
type verifyingReader struct {
	body     io.ReadCloser
	fileID   string
	hash     hash.Hash
	read     int64
	wantSize int64
	wantMD5  string
	err      error
}

func newVerifyingReader(body io.ReadCloser, fileID string, wantSize int64, wantMD5 string) *verifyingReader {
	return &verifyingReader{
		body:     body,
		fileID:   fileID,
		hash:     md5.New(),
		wantSize: wantSize,
		wantMD5:  strings.ToLower(wantMD5),
	}
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	n, err := v.body.Read(p)
	if n > 0 {
		v.hash.Write(p[:n])
		v.read += int64(n)
	}
	switch {
	case v.wantSize >= 0 && v.read > v.wantSize:
		v.err = v.mismatch("size", fmt.Sprint(v.wantSize), fmt.Sprintf(">%d", v.wantSize))
	case err == io.EOF:
		v.err = v.verify()
		if v.err == nil {
			v.err = io.EOF
		}
	case err != nil:
		v.err = streamError(err, v.fileID)
	}
	if v.err != nil {
		return n, v.err
	}
	return n, nil
}

func (v *verifyingReader) Close() error {
	return v.body.Close()
}

func (v *verifyingReader) verify() error {
	if v.wantSize >= 0 && v.read != v.wantSize {
		return v.mismatch("size", fmt.Sprint(v.wantSize), fmt.Sprint(v.read))
	}
	if v.wantMD5 != "" {
		if got := hex.EncodeToString(v.hash.Sum(nil)); got != v.wantMD5 {
			return v.mismatch("md5", v.wantMD5, got)
		}
	}
	return nil
}

func (v *verifyingReader) mismatch(field, want, got string) error {
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeIntegrity,
		fmt.Sprintf("Downloaded content of %s does not match its metadata (%s)", v.fileID, field)).
		WithContext("fileId", v.fileID).
		WithContext("field", field).
		WithContext("expected", want).
		WithContext("actual", got).
		Build())
}

func streamError(err error, fileID string) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return utils.AsAppError(err)
	}
	return utils.NewAppError(utils.NewServiceError(utils.ErrCodeNetworkError,
		fmt.Sprintf("Download of %s interrupted: %s", fileID, err)).
		WithContext("fileId", fileID).
		Build()).WithCause(err)
}
