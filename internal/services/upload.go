package services

import (
	"io"
	"strings"

	"github.com/yoockh/vaihub/internal/utils"
)

const MaxImageBytes = 5 << 20

// Upload is a file received from a multipart form.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (u *Upload) validateImage(op string) error {
	if u == nil || u.Body == nil {
		return utils.E(utils.CodeInvalidArgument, op, "image is required", nil)
	}
	if !strings.HasPrefix(u.ContentType, "image/") {
		return utils.E(utils.CodeInvalidArgument, op, "file must be an image", nil)
	}
	if u.Size > MaxImageBytes {
		return utils.E(utils.CodeInvalidArgument, op, "image must be 5MB or smaller", nil)
	}
	return nil
}
