package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
)

// Storage is a service to persist and retrieve raster products
type Storage interface {
	// SaveProduct persists the local file under the product name and returns its uri
	SaveProduct(ctx context.Context, localFile, product string) (string, error)
	// ImportProduct copies the product to localdir and returns the local path
	// Raise ErrFileNotFound
	ImportProduct(ctx context.Context, product, localdir string) (string, error)
	// DeleteProduct deletes the product from the storage
	// Raise ErrFileNotFound
	DeleteProduct(ctx context.Context, product string) error
}

// NewStorageStrategy returns the Storage implementation matching the uri
// (gs://bucket/prefix or a local directory)
func NewStorageStrategy(ctx context.Context, uri string) (Storage, error) {
	if strings.HasPrefix(uri, "gs://") {
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewStorageStrategy.NewClient: %w", err)
		}
		trimmed := strings.TrimPrefix(uri, "gs://")
		bucket, prefix, _ := strings.Cut(trimmed, "/")
		if bucket == "" {
			return nil, fmt.Errorf("NewStorageStrategy: missing bucket in %s", uri)
		}
		return &gsStorage{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
	}
	if uri == "" {
		return nil, fmt.Errorf("NewStorageStrategy: empty storage uri")
	}
	if err := os.MkdirAll(uri, 0766); err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}
	return &localStorage{dir: uri}, nil
}

// localStorage implements Storage on a local directory
type localStorage struct {
	dir string
}

func (s *localStorage) SaveProduct(ctx context.Context, localFile, product string) (string, error) {
	dst := filepath.Join(s.dir, product)
	if err := fileCopy(localFile, dst); err != nil {
		return "", fmt.Errorf("SaveProduct.%w", err)
	}
	return dst, nil
}

func (s *localStorage) ImportProduct(ctx context.Context, product, localdir string) (string, error) {
	src := filepath.Join(s.dir, product)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return "", ErrFileNotFound{File: src}
	}
	dst := filepath.Join(localdir, product)
	if err := fileCopy(src, dst); err != nil {
		return "", fmt.Errorf("ImportProduct.%w", err)
	}
	return dst, nil
}

func (s *localStorage) DeleteProduct(ctx context.Context, product string) error {
	if err := os.Remove(filepath.Join(s.dir, product)); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound{File: product}
		}
		return fmt.Errorf("DeleteProduct: %w", err)
	}
	return nil
}

// gsStorage implements Storage on a gs://bucket/prefix destination
type gsStorage struct {
	client *gstorage.Client
	bucket string
	prefix string
}

func (s *gsStorage) object(product string) *gstorage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, product))
}

func (s *gsStorage) uri(product string) string {
	return "gs://" + path.Join(s.bucket, s.prefix, product)
}

func (s *gsStorage) SaveProduct(ctx context.Context, localFile, product string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", fmt.Errorf("SaveProduct.Open: %w", err)
	}
	defer f.Close()

	w := s.object(product).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", MakeTemporary(fmt.Errorf("SaveProduct.Copy: %w", err))
	}
	if err := w.Close(); err != nil {
		return "", MakeTemporary(fmt.Errorf("SaveProduct.Close: %w", err))
	}
	return s.uri(product), nil
}

func (s *gsStorage) ImportProduct(ctx context.Context, product, localdir string) (string, error) {
	r, err := s.object(product).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return "", ErrFileNotFound{File: s.uri(product)}
		}
		return "", MakeTemporary(fmt.Errorf("ImportProduct.NewReader: %w", err))
	}
	defer r.Close()

	dst := filepath.Join(localdir, product)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("ImportProduct.Create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", MakeTemporary(fmt.Errorf("ImportProduct.Copy: %w", err))
	}
	return dst, nil
}

func (s *gsStorage) DeleteProduct(ctx context.Context, product string) error {
	if err := s.object(product).Delete(ctx); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return ErrFileNotFound{File: s.uri(product)}
		}
		return MakeTemporary(fmt.Errorf("DeleteProduct: %w", err))
	}
	return nil
}

// fileCopy copies a single file from src to dst
func fileCopy(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("fileCopy.ReadFile: %w", err)
	}
	_ = os.MkdirAll(path.Dir(dst), 0766)
	if err = os.WriteFile(dst, input, 0644); err != nil {
		return fmt.Errorf("fileCopy.WriteFile: %w", err)
	}
	return nil
}
