package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/geoharvest/scene-downloader/service"
)

func TestLocalProvider(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scene.tif")
	if err := os.WriteFile(src, []byte("tiff-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	ip := NewLocalImageProvider(dir)
	dst := filepath.Join(t.TempDir(), "out.tif")
	if err := ip.Download(context.Background(), "file://"+src, dst); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "tiff-bytes" {
		t.Errorf("unexpected content: %s", b)
	}

	err = ip.Download(context.Background(), "file://"+filepath.Join(dir, "missing.tif"), dst)
	if _, ok := err.(ErrProductNotFound); !ok {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestHTTPProvider(t *testing.T) {
	var gotAuth string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("tiff-bytes"))
		case "/gone":
			w.WriteHeader(404)
		default:
			w.WriteHeader(503)
		}
	}))
	defer svr.Close()

	ip := NewHTTPImageProvider("secret")
	dst := filepath.Join(t.TempDir(), "out.tif")
	if err := ip.Download(context.Background(), svr.URL+"/ok", dst); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization not forwarded: %q", gotAuth)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "tiff-bytes" {
		t.Errorf("unexpected content: %s", b)
	}

	err = ip.Download(context.Background(), svr.URL+"/gone", dst)
	var notfound ErrProductNotFound
	if !errors.As(err, &notfound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}

	err = ip.Download(context.Background(), svr.URL+"/busy", dst)
	if err == nil || !service.Temporary(err) {
		t.Errorf("expected temporary error, got %v", err)
	}
}
