package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/interface/catalog"
	"github.com/geoharvest/scene-downloader/service"
)

var testAOI = common.AreaOfInterest{LonMin: 116.48, LonMax: 116.52, LatMin: 31.18, LatMax: 31.22}

// fakeAPI implements catalog.SceneAPI
type fakeAPI struct {
	scenes entities.Scenes
	valid  map[string]int64
	total  int64
	fail   map[string]error
	calls  int
}

func (f *fakeAPI) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	return f.scenes, nil
}

func (f *fakeAPI) CountValidPixels(ctx context.Context, scene *entities.Scene, band string, aoi common.AreaOfInterest, scale float64) (int64, error) {
	f.calls++
	if err := f.fail[scene.SourceID]; err != nil {
		return 0, err
	}
	return f.valid[scene.SourceID], nil
}

func (f *fakeAPI) CountReferencePixels(ctx context.Context, scene *entities.Scene, aoi common.AreaOfInterest, scale float64) (int64, error) {
	f.calls++
	if err := f.fail[scene.SourceID]; err != nil {
		return 0, err
	}
	return f.total, nil
}

func (f *fakeAPI) ExportScene(ctx context.Context, scene *entities.Scene, req catalog.ExportRequest) (string, error) {
	return fmt.Sprintf("https://export.test/%s", scene.SourceID), nil
}

func testScene(sourceID string, timestampMs int64, bands ...string) *entities.Scene {
	if len(bands) == 0 {
		bands = entities.DefaultBands
	}
	return &entities.Scene{
		Scene: common.Scene{
			SourceID: sourceID,
			Data:     common.SceneAttrs{UUID: sourceID, TimestampMs: timestampMs, Bands: bands},
		},
	}
}

func TestEvaluate(t *testing.T) {
	scene := testScene("20250803T024521_20250803T025400_T50SMB", 1754188021000)
	api := &fakeAPI{valid: map[string]int64{scene.SourceID: 9900}, total: 10000}
	c := Catalog{API: api}

	coverage, err := c.Evaluate(context.Background(), scene, testAOI, "B2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if coverage.Valid != 9900 || coverage.Total != 10000 {
		t.Errorf("unexpected counts: %+v", coverage)
	}
	if coverage.Ratio != 0.99 {
		t.Errorf("expected ratio 0.99, got %v", coverage.Ratio)
	}
	if api.calls != 2 {
		t.Errorf("expected one valid and one reference count, got %d calls", api.calls)
	}
}

func TestEvaluateNoOverlap(t *testing.T) {
	scene := testScene("20250803T024521_20250803T025400_T50SMB", 1754188021000)
	api := &fakeAPI{valid: map[string]int64{}, total: 10000}
	c := Catalog{API: api}

	coverage, err := c.Evaluate(context.Background(), scene, testAOI, "B2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if coverage.Ratio != 0 {
		t.Errorf("expected null ratio, got %v", coverage.Ratio)
	}
}

func TestEvaluatePreconditions(t *testing.T) {
	scene := testScene("20250803T024521_20250803T025400_T50SMB", 1754188021000, "B2", "B3")
	api := &fakeAPI{valid: map[string]int64{scene.SourceID: 9900}, total: 10000}
	c := Catalog{API: api}

	_, err := c.Evaluate(context.Background(), scene, testAOI, "B8", 10)
	var invalidBand ErrInvalidBand
	if !errors.As(err, &invalidBand) {
		t.Errorf("expected ErrInvalidBand, got %v", err)
	}

	flat := common.AreaOfInterest{LonMin: 116.48, LonMax: 116.52, LatMin: 31.22, LatMax: 31.22}
	_, err = c.Evaluate(context.Background(), scene, flat, "B2", 10)
	var degenerate ErrDegenerateGeometry
	if !errors.As(err, &degenerate) {
		t.Errorf("expected ErrDegenerateGeometry, got %v", err)
	}

	if api.calls != 0 {
		t.Errorf("precondition failures must not reach the catalog, got %d calls", api.calls)
	}
}

func TestEvaluateRemoteFailure(t *testing.T) {
	scene := testScene("20250803T024521_20250803T025400_T50SMB", 1754188021000)
	api := &fakeAPI{
		valid: map[string]int64{},
		total: 10000,
		fail:  map[string]error{scene.SourceID: service.MakeTemporary(errors.New("compute: 503"))},
	}
	c := Catalog{API: api}

	_, err := c.Evaluate(context.Background(), scene, testAOI, "B2", 10)
	if err == nil || !service.Temporary(err) {
		t.Errorf("expected temporary error, got %v", err)
	}
}
