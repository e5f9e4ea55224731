package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/services"
	"github.com/yoockh/vaihub/internal/utils"
)

// imageUpload reads an optional image from a multipart field. The content
// type is sniffed rather than trusted from the client.
func imageUpload(c *gin.Context, op, field string) (*services.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, utils.E(utils.CodeInvalidArgument, op, "invalid multipart field '"+field+"'", err)
	}
	if fh.Size <= 0 || fh.Size > services.MaxImageBytes {
		return nil, nil, utils.E(utils.CodeInvalidArgument, op, "image must be 5MB or smaller", nil)
	}

	file, err := fh.Open()
	if err != nil {
		return nil, nil, utils.E(utils.CodeInternal, op, "failed to open upload", err)
	}

	// sniff content type (read 512 bytes)
	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	head = head[:n]
	ct := http.DetectContentType(head)
	if !strings.HasPrefix(ct, "image/") {
		_ = file.Close()
		return nil, nil, utils.E(utils.CodeInvalidArgument, op, "file must be an image", nil)
	}

	up := &services.Upload{
		FileName:    fh.Filename,
		ContentType: ct,
		Size:        fh.Size,
		// re-compose stream: head + remaining file
		Body: &readJoin{a: bytes.NewReader(head), b: file},
	}
	return up, func() { _ = file.Close() }, nil
}

type readJoin struct {
	a *bytes.Reader
	b io.Reader
}

func (r *readJoin) Read(p []byte) (int, error) {
	if r.a != nil && r.a.Len() > 0 {
		return r.a.Read(p)
	}
	return r.b.Read(p)
}
