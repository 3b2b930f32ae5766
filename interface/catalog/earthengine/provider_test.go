package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/interface/catalog"
)

func testProvider(t *testing.T, handler http.HandlerFunc) (*Provider, func()) {
	srv := httptest.NewServer(handler)
	p := NewProvider(context.Background(), "test-project", oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}))
	p.Endpoint = srv.URL
	return p, srv.Close
}

func testArea() *entities.Area {
	area := &entities.Area{
		AOIID:     "test",
		AOI:       common.AreaOfInterest{LonMin: 116.48, LonMax: 116.98, LatMin: 30.72, LatMax: 31.22},
		StartTime: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC),
	}
	area.FillDefaults()
	return area
}

func TestSearchScenes(t *testing.T) {
	p, done := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("region") == "" {
			t.Errorf("missing region parameter")
		}
		if r.URL.Query().Get("startTime") != "2025-08-01T00:00:00Z" {
			t.Errorf("unexpected startTime: %s", r.URL.Query().Get("startTime"))
		}
		// out of order on purpose: the provider must sort ascending
		fmt.Fprint(w, `{"images":[
			{"name":"S2B_20250803","startTime":"2025-08-03T02:45:21Z","bands":[{"id":"B2"},{"id":"B3"}],
			 "properties":{"system:time_start":1754189121000}},
			{"name":"S2A_20250801","startTime":"2025-08-01T02:45:21Z","bands":[{"id":"B2"}],
			 "properties":{"system:time_start":1754016321000}}
		]}`)
	})
	defer done()

	scenes, err := p.SearchScenes(context.Background(), testArea())
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(scenes.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes.Scenes))
	}
	if scenes.Scenes[0].SourceID != "S2A_20250801" || scenes.Scenes[1].SourceID != "S2B_20250803" {
		t.Errorf("scenes not sorted by acquisition time: %s, %s", scenes.Scenes[0].SourceID, scenes.Scenes[1].SourceID)
	}
	if scenes.Scenes[1].Data.TimestampMs != 1754189121000 {
		t.Errorf("unexpected timestamp: %d", scenes.Scenes[1].Data.TimestampMs)
	}
	if len(scenes.Scenes[0].Data.Bands) != 1 {
		t.Errorf("unexpected bands: %v", scenes.Scenes[0].Data.Bands)
	}
}

func TestCountPixels(t *testing.T) {
	var lastReq reduceRequest
	p, done := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&lastReq); err != nil {
			t.Errorf("%v", err)
		}
		fmt.Fprint(w, `{"result":9900}`)
	})
	defer done()

	scene := &entities.Scene{Scene: common.Scene{SourceID: "S2A_20250801"}}
	aoi := common.AreaOfInterest{LonMin: 116.48, LonMax: 116.98, LatMin: 30.72, LatMax: 31.22}

	n, err := p.CountValidPixels(context.Background(), scene, "B2", aoi, 10)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if n != 9900 {
		t.Errorf("expected 9900, got %d", n)
	}
	if lastReq.Band != "B2" || lastReq.Reducer != "count" || lastReq.Scale != 10 {
		t.Errorf("unexpected count request: %+v", lastReq)
	}

	if _, err := p.CountReferencePixels(context.Background(), scene, aoi, 10); err != nil {
		t.Fatalf("%v", err)
	}
	if lastReq.Constant == nil || *lastReq.Constant != 1 {
		t.Errorf("reference count must reduce a constant raster: %+v", lastReq)
	}
}

func TestExportScene(t *testing.T) {
	var lastReq exportRequest
	p, done := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&lastReq); err != nil {
			t.Errorf("%v", err)
		}
		fmt.Fprint(w, `{"url":"https://example.com/download/S2A_20250801.tif"}`)
	})
	defer done()

	scene := &entities.Scene{Scene: common.Scene{SourceID: "S2A_20250801"}}
	aoi := common.AreaOfInterest{LonMin: 116.48, LonMax: 116.98, LatMin: 30.72, LatMax: 31.22}
	url, err := p.ExportScene(context.Background(), scene, catalog.ExportRequest{
		Area:       aoi,
		CRS:        "EPSG:4326",
		Transform:  common.DeriveTransform(0.00008983, aoi),
		Resampling: "bilinear",
		Bands:      []string{"B2", "B3", "B4", "B8"},
		DNScale:    common.ReflectanceScale,
	})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if url != "https://example.com/download/S2A_20250801.tif" {
		t.Errorf("unexpected url: %s", url)
	}
	if lastReq.CRSTransform != [6]float64{0.00008983, 0, 116.48, 0, -0.00008983, 31.22} {
		t.Errorf("unexpected transform: %v", lastReq.CRSTransform)
	}
	if lastReq.Resampling != "bilinear" || lastReq.DNScale != 10000 {
		t.Errorf("unexpected export request: %+v", lastReq)
	}
}

func TestRemoteFailureIsTemporary(t *testing.T) {
	p, done := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", 503)
	})
	defer done()

	_, err := p.SearchScenes(context.Background(), testArea())
	if err == nil {
		t.Fatal("expected an error")
	}
}
