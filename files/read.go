package files

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// previewBytes is the number of leading bytes shown for binary content.
const previewBytes = 100

// Content is the result of reading a file.
type Content struct {
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Text     string `json:"text,omitempty"`
	// Binary content is not returned; Preview holds the hex encoding of
	// its first bytes.
	Binary  bool   `json:"binary,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// Marker describes binary content in place of its bytes.
func (c *Content) Marker() string {
	return fmt.Sprintf("Binary file (%d bytes), not displayed", c.Size)
}

// Read returns the content of the regular file id.
func (r *Resolver) Read(ctx context.Context, id string) (*Content, error) {
	p, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return nil, classify(err, id)
	}
	if !fi.Mode().IsRegular() {
		return nil, errors.Wrapf(protocol.ErrNotAFile, "%q", id)
	}
	if fi.Size() > r.maxSize {
		return nil, errors.Mark(
			errors.Newf("file too large: %d bytes (max %d)", fi.Size(), r.maxSize),
			protocol.ErrHandler,
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %q", id)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, classify(err, id)
	}

	c := &Content{Path: r.Rel(p), Size: int64(len(data))}
	if text, ok := decodeText(data); ok {
		c.Text = text
		c.MimeType = mimeType(p, "text/plain; charset=utf-8")
		return c, nil
	}
	c.Binary = true
	c.MimeType = mimeType(p, "application/octet-stream")
	c.Preview = hex.EncodeToString(data[:min(len(data), previewBytes)])
	return c, nil
}

// decodeText accepts UTF-8 without NUL bytes and BOM-marked UTF-16.
func decodeText(data []byte) (string, bool) {
	if hasUTF16BOM(data) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil || !utf8.Valid(out) {
			return "", false
		}
		return string(out), true
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", false
	}
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), true
}

func hasUTF16BOM(data []byte) bool {
	return len(data) >= 2 && ((data[0] == 0xfe && data[1] == 0xff) || (data[0] == 0xff && data[1] == 0xfe))
}

func mimeType(p, fallback string) string {
	if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
		return t
	}
	return fallback
}
