package downloader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/downloader"
	"github.com/geoharvest/scene-downloader/interface/catalog"
	"github.com/geoharvest/scene-downloader/interface/provider"
	"github.com/geoharvest/scene-downloader/service"
)

type fakeExporter struct {
	url string
	req catalog.ExportRequest
}

func (f *fakeExporter) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	return entities.Scenes{}, nil
}

func (f *fakeExporter) CountValidPixels(ctx context.Context, scene *entities.Scene, band string, aoi common.AreaOfInterest, scale float64) (int64, error) {
	return 0, nil
}

func (f *fakeExporter) CountReferencePixels(ctx context.Context, scene *entities.Scene, aoi common.AreaOfInterest, scale float64) (int64, error) {
	return 0, nil
}

func (f *fakeExporter) ExportScene(ctx context.Context, scene *entities.Scene, req catalog.ExportRequest) (string, error) {
	f.req = req
	return f.url, nil
}

type failingProvider struct{}

func (failingProvider) Name() string { return "Failing" }
func (failingProvider) Download(ctx context.Context, url, localPath string) error {
	return errors.New("connection refused")
}

func TestProcessScene(t *testing.T) {
	ctx := context.Background()

	exportDir := t.TempDir()
	exported := filepath.Join(exportDir, "export.tif")
	if err := os.WriteFile(exported, []byte("tiff-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	storageDir := t.TempDir()
	storage, err := service.NewStorageStrategy(ctx, storageDir)
	if err != nil {
		t.Fatal(err)
	}

	aoi := common.AreaOfInterest{LonMin: 116.48, LonMax: 116.52, LatMin: 31.18, LatMax: 31.22}
	scene := common.AcceptedScene{
		Scene: common.Scene{
			SourceID: "20250803T024521_20250803T025400_T50SMB",
			Data:     common.SceneAttrs{UUID: "asset-1", TimestampMs: 1754188021000, Bands: []string{"B2", "B3", "B4", "B8"}},
		},
		Timestamp:     time.UnixMilli(1754188021000).UTC(),
		Area:          aoi,
		Transform:     common.DeriveTransform(0.00008983, aoi),
		CoverageRatio: 0.99,
	}

	api := &fakeExporter{url: "file://" + exported}
	providers := []provider.ImageProvider{failingProvider{}, provider.NewLocalImageProvider(exportDir)}

	opts := downloader.DefaultOptions()
	opts.PostProcess = false
	uri, err := downloader.ProcessScene(ctx, api, providers, storage, scene, t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}

	expected := filepath.Join(storageDir, "Sentinel2_116.48E_31.22N_2025-08-03_02-27-01.tif")
	if uri != expected {
		t.Errorf("expected %s, got %s", expected, uri)
	}
	b, err := os.ReadFile(uri)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "tiff-bytes" {
		t.Errorf("unexpected content: %s", b)
	}

	if api.req.CRS != "EPSG:4326" || api.req.Resampling != "bilinear" || api.req.DNScale != common.ReflectanceScale {
		t.Errorf("unexpected export request: %+v", api.req)
	}
	if api.req.Transform != scene.Transform {
		t.Errorf("export must carry the derived grid: %+v", api.req.Transform)
	}
}
