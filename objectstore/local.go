// Package objectstore stores uploaded images and hands out public URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrNotImage   = errors.New("please upload a valid image file (PNG, JPEG, GIF or WebP)")
	ErrInvalidRef = errors.New("invalid object reference")
)

// rasterTypes are the image formats served back as-is. Scriptable formats
// such as SVG are refused since uploads share the API origin.
var rasterTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

func isRaster(mt *mimetype.MIME) bool {
	for _, t := range rasterTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// Object identifies a stored blob. Ref is what Delete takes back.
type Object struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

type Store interface {
	PutImage(ctx context.Context, namespace string, data []byte) (Object, error)
	Delete(ctx context.Context, ref string) error
}

// LocalStore keeps objects on disk under root and serves them from baseURL.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) Root() string { return s.root }

// PutImage sniffs data and stores it under namespace with a random name.
func (s *LocalStore) PutImage(_ context.Context, namespace string, data []byte) (Object, error) {
	mt := mimetype.Detect(data)
	if !isRaster(mt) {
		return Object{}, ErrNotImage
	}

	ref := path.Join(namespace, uuid.NewString()+mt.Extension())
	full, err := s.resolve(ref)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("failed to create namespace: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("failed to write object: %w", err)
	}

	return Object{Ref: ref, URL: s.baseURL + "/" + ref}, nil
}

// Delete removes the object; a missing object is not an error.
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	full, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *LocalStore) resolve(ref string) (string, error) {
	clean := path.Clean("/" + ref)
	if clean == "/" || ref == "" || strings.Contains(ref, "..") {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
