// Package media stores event thumbnails.
//
// The service layer only sees the Store interface: Save returns a public URL
// that goes straight into Event.Thumbnail, and Delete takes that URL back.
// LocalStore keeps files on disk and the server exposes them under the
// configured URL prefix.
package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"

	"github.com/sakif/eventhub/internal/apperror"
)

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

var allowedImages = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Upload is a file received from a multipart form.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Store persists uploaded images and returns their public URL.
type Store interface {
	Save(ctx context.Context, up *Upload) (url string, err error)
	Delete(ctx context.Context, url string) error
}

// LocalStore writes images into a directory on disk.
type LocalStore struct {
	dir       string
	urlPrefix string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed. urlPrefix is the path the files are
// served under, e.g. "/uploads".
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: creating upload dir: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
	}, nil
}

// Dir is the directory the server's file handler should serve.
func (s *LocalStore) Dir() string { return s.dir }

// URLPrefix is the mount point for the file handler.
func (s *LocalStore) URLPrefix() string { return s.urlPrefix }

// Save sniffs the content type, rejects anything that is not an image, and
// writes the file under a fresh xid name.
func (s *LocalStore) Save(ctx context.Context, up *Upload) (string, error) {
	if up == nil || up.Body == nil {
		return "", apperror.ValidationFailed("thumbnail", "Thumbnail is required")
	}

	br := bufio.NewReaderSize(up.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("media: reading upload: %w", err)
	}
	if len(head) == 0 {
		return "", apperror.ValidationFailed("thumbnail", "Thumbnail is empty")
	}

	mtype := mimetype.Detect(head)
	if !mimetype.EqualsAny(mtype.String(), allowedImages...) {
		return "", apperror.ValidationFailed("thumbnail", "Thumbnail must be a JPEG, PNG, GIF or WebP image")
	}
	ext := mtype.Extension()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := xid.New().String() + ext
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("media: creating %s: %w", name, err)
	}

	if _, err := io.Copy(f, br); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("media: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("media: closing %s: %w", name, err)
	}

	return path.Join(s.urlPrefix, name), nil
}

// Delete removes a file previously returned by Save. Unknown URLs and files
// that are already gone are not errors.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.urlPrefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return nil
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media: deleting %s: %w", name, err)
	}
	return nil
}
