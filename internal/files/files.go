// Package files gives the HTTP layer access to the output directory by base
// name only.
package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrInvalidName = errors.New("invalid filename")
	ErrNotFound    = errors.New("file not found")
)

// BaseName reduces a client-supplied name to its final path element. Both
// slash styles are treated as separators so traversal attempts collapse to a
// plain name; empty, "." and ".." are rejected.
func BaseName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", ErrInvalidName
	}
	return base, nil
}

// Resolve returns the path of name inside dir.
func Resolve(dir, name string) (string, error) {
	base, err := BaseName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, base), nil
}

// Open opens a regular file in dir by base name.
func Open(dir, name string) (*os.File, fs.FileInfo, error) {
	p, err := Resolve(dir, name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Delete removes a regular file in dir by base name.
func Delete(dir, name string) error {
	p, err := Resolve(dir, name)
	if err != nil {
		return err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return ErrNotFound
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// ServeAttachment streams name from dir as a download, honouring a single
// byte range. Lookup failures are returned before anything is written so the
// caller can choose the error response.
func ServeAttachment(w http.ResponseWriter, r *http.Request, dir, name string) error {
	f, info, err := Open(dir, name)
	if err != nil {
		return err
	}
	defer f.Close()

	size := info.Size()
	contentType := mime.TypeByExtension(filepath.Ext(info.Name()))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// malformed ranges are ignored and the whole file is sent
		rng = nil
	}

	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, f)
		}
		return nil
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	h.Set("Content-Range", rng.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		io.CopyN(w, f, rng.Length())
	}
	return nil
}
