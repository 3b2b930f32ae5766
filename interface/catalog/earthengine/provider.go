package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"golang.org/x/oauth2"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/interface/catalog"
	"github.com/geoharvest/scene-downloader/service"
)

const (
	DefaultEndpoint = "https://earthengine.googleapis.com/v1"
	// S2Collection is the harmonized Sentinel-2 TOA collection
	S2Collection = "COPERNICUS/S2_HARMONIZED"
	// CatalogLimit is the page size of the image listing
	CatalogLimit = 500
)

// Provider implements catalog.SceneAPI on the Earth Engine REST API.
// The session (oauth2 token source) is injected at construction so tests can
// substitute a fake transport.
type Provider struct {
	Project    string
	Collection string
	Endpoint   string
	Limit      int

	client *http.Client
}

// NewProvider creates the provider with an authenticated session
func NewProvider(ctx context.Context, project string, session oauth2.TokenSource) *Provider {
	return &Provider{
		Project:    project,
		Collection: S2Collection,
		Endpoint:   DefaultEndpoint,
		Limit:      CatalogLimit,
		client:     oauth2.NewClient(ctx, session),
	}
}

func (p *Provider) Name() string {
	return "EarthEngine (" + p.Collection + ")"
}

type imageBand struct {
	ID string `json:"id"`
}

type image struct {
	Name       string                 `json:"name"`
	StartTime  time.Time              `json:"startTime"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Bands      []imageBand            `json:"bands"`
	Properties map[string]interface{} `json:"properties"`
}

type listImagesResponse struct {
	Images        []image `json:"images"`
	NextPageToken string  `json:"nextPageToken"`
}

// SearchScenes implements catalog.SceneAPI
func (p *Provider) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	if p.Limit == 0 {
		p.Limit = CatalogLimit
	}

	region, err := json.Marshal(geojson.Geometry{Geometry: service.AOIGeometry(area.AOI)})
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("SearchScenes(EarthEngine).Marshal: %w", err)
	}

	baseQuery := url.Values{}
	baseQuery.Set("region", string(region))
	baseQuery.Set("startTime", area.StartTime.UTC().Format("2006-01-02")+"T00:00:00Z")
	baseQuery.Set("endTime", area.EndTime.UTC().Format("2006-01-02")+"T23:59:59Z")
	baseQuery.Set("fields", "images(name,startTime,geometry,bands,properties),nextPageToken")

	var images []image
	if area.Limit > 0 {
		// Map the client paging onto the catalog's own pages
		for _, page := range service.ComputePagesToQuery(area.Page, area.Limit, p.Limit) {
			pageImages, err := p.listPage(ctx, baseQuery, page.Page, page.Limit)
			if err != nil {
				return entities.Scenes{}, err
			}
			if page.LastRowToSelect >= len(pageImages) {
				page.LastRowToSelect = len(pageImages) - 1
			}
			if page.FirstRowToSelect <= page.LastRowToSelect {
				images = append(images, pageImages[page.FirstRowToSelect:page.LastRowToSelect+1]...)
			}
		}
	} else {
		token := ""
		for {
			pageImages, next, err := p.list(ctx, baseQuery, token, p.Limit)
			if err != nil {
				return entities.Scenes{}, err
			}
			images = append(images, pageImages...)
			if next == "" {
				break
			}
			token = next
		}
	}

	scenes := entities.Scenes{Properties: map[string]string{"collection": p.Collection}}
	for _, img := range images {
		scenes.Scenes = append(scenes.Scenes, toScene(img))
	}

	// Deterministic ascending acquisition time
	sort.SliceStable(scenes.Scenes, func(i, j int) bool {
		return scenes.Scenes[i].Data.TimestampMs < scenes.Scenes[j].Data.TimestampMs
	})
	return scenes, nil
}

// listPage fetches one numbered page, walking the page tokens from the start
func (p *Provider) listPage(ctx context.Context, baseQuery url.Values, page, limit int) ([]image, error) {
	token := ""
	for i := 0; ; i++ {
		images, next, err := p.list(ctx, baseQuery, token, limit)
		if err != nil {
			return nil, err
		}
		if i == page {
			return images, nil
		}
		if next == "" {
			return nil, nil
		}
		token = next
	}
}

func (p *Provider) list(ctx context.Context, baseQuery url.Values, pageToken string, pageSize int) ([]image, string, error) {
	query := url.Values{}
	for k, v := range baseQuery {
		query[k] = v
	}
	query.Set("pageSize", fmt.Sprintf("%d", pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	u := fmt.Sprintf("%s/projects/earthengine-public/assets/%s:listImages?%s", p.Endpoint, p.Collection, query.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("SearchScenes(EarthEngine).NewRequest: %w", err)
	}
	body, err := p.getBody(req)
	if err != nil {
		return nil, "", fmt.Errorf("SearchScenes(EarthEngine): %w", err)
	}
	resp := listImagesResponse{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("SearchScenes(EarthEngine).Unmarshal: %w", err)
	}
	return resp.Images, resp.NextPageToken, nil
}

func toScene(img image) *entities.Scene {
	scene := &entities.Scene{
		Scene: common.Scene{
			SourceID: img.Name,
			Data: common.SceneAttrs{
				TimestampMs: img.StartTime.UnixMilli(),
			},
		},
		Tags: map[string]string{},
	}
	// system:time_start overrides startTime when present (milliseconds)
	if ts, ok := img.Properties["system:time_start"].(float64); ok {
		scene.Data.TimestampMs = int64(ts)
	}
	for _, b := range img.Bands {
		scene.Data.Bands = append(scene.Data.Bands, b.ID)
	}
	for k, v := range img.Properties {
		scene.Tags[k] = fmt.Sprintf("%v", v)
	}
	if img.Geometry != nil && img.Geometry.Geometry != nil {
		scene.GeometryWKT = wkt.MustEncode(img.Geometry.Geometry)
	}
	return scene
}

type reduceRequest struct {
	Image    string          `json:"image,omitempty"`
	Constant *float64        `json:"constant,omitempty"`
	Band     string          `json:"band,omitempty"`
	Region   json.RawMessage `json:"region"`
	Scale    float64         `json:"scale"`
	Reducer  string          `json:"reducer"`
	// MaxPixels bounds the count query, as the reference counts can be huge
	MaxPixels float64 `json:"maxPixels"`
}

type reduceResponse struct {
	Result int64 `json:"result"`
}

// CountValidPixels implements catalog.SceneAPI
func (p *Provider) CountValidPixels(ctx context.Context, scene *entities.Scene, band string, aoi common.AreaOfInterest, scale float64) (int64, error) {
	return p.reduceCount(ctx, reduceRequest{Image: scene.SourceID, Band: band}, aoi, scale)
}

// CountReferencePixels implements catalog.SceneAPI. The all-valid reference is
// a constant raster reprojected to the scene's native grid, so the denominator
// shares the numerator's pixel grid.
func (p *Provider) CountReferencePixels(ctx context.Context, scene *entities.Scene, aoi common.AreaOfInterest, scale float64) (int64, error) {
	one := 1.0
	return p.reduceCount(ctx, reduceRequest{Image: scene.SourceID, Constant: &one}, aoi, scale)
}

func (p *Provider) reduceCount(ctx context.Context, req reduceRequest, aoi common.AreaOfInterest, scale float64) (int64, error) {
	region, err := json.Marshal(geojson.Geometry{Geometry: service.AOIGeometry(aoi)})
	if err != nil {
		return 0, fmt.Errorf("CountPixels(EarthEngine).Marshal: %w", err)
	}
	req.Region = region
	req.Scale = scale
	req.Reducer = "count"
	req.MaxPixels = 1e13

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("CountPixels(EarthEngine).Marshal: %w", err)
	}
	u := fmt.Sprintf("%s/projects/%s/value:compute", p.Endpoint, p.Project)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("CountPixels(EarthEngine).NewRequest: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	respBody, err := p.getBody(httpReq)
	if err != nil {
		return 0, fmt.Errorf("CountPixels(EarthEngine): %w", err)
	}
	resp := reduceResponse{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("CountPixels(EarthEngine).Unmarshal [%s]: %w", respBody, err)
	}
	return resp.Result, nil
}

type exportRequest struct {
	Image        string          `json:"image"`
	Bands        []string        `json:"bands"`
	Region       json.RawMessage `json:"region"`
	CRS          string          `json:"crs"`
	CRSTransform [6]float64      `json:"crsTransform"`
	Resampling   string          `json:"resampling"`
	DNScale      float64         `json:"dnScale,omitempty"`
	FileFormat   string          `json:"fileFormat"`
}

type exportResponse struct {
	URL string `json:"url"`
}

// ExportScene implements catalog.SceneAPI
func (p *Provider) ExportScene(ctx context.Context, scene *entities.Scene, req catalog.ExportRequest) (string, error) {
	region, err := json.Marshal(geojson.Geometry{Geometry: service.AOIGeometry(req.Area)})
	if err != nil {
		return "", fmt.Errorf("ExportScene(EarthEngine).Marshal: %w", err)
	}
	// export transform in GDAL ordering is reshuffled to the provider's
	// [xScale, xShear, xOrigin, yShear, yScale, yOrigin] convention
	t := req.Transform
	body, err := json.Marshal(exportRequest{
		Image:        scene.SourceID,
		Bands:        req.Bands,
		Region:       region,
		CRS:          req.CRS,
		CRSTransform: [6]float64{t.XScale, t.XShear, t.XOrigin, t.YShear, t.YScale, t.YOrigin},
		Resampling:   req.Resampling,
		DNScale:      req.DNScale,
		FileFormat:   "GEO_TIFF",
	})
	if err != nil {
		return "", fmt.Errorf("ExportScene(EarthEngine).Marshal: %w", err)
	}
	u := fmt.Sprintf("%s/projects/%s/image:export", p.Endpoint, p.Project)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ExportScene(EarthEngine).NewRequest: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	respBody, err := p.getBody(httpReq)
	if err != nil {
		return "", fmt.Errorf("ExportScene(EarthEngine): %w", err)
	}
	resp := exportResponse{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("ExportScene(EarthEngine).Unmarshal [%s]: %w", respBody, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("ExportScene(EarthEngine): no download url for %s", scene.SourceID)
	}
	return resp.URL, nil
}

func (p *Provider) getBody(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, service.MakeTemporary(err)
	}
	defer resp.Body.Close()
	body := new(bytes.Buffer)
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, service.MakeTemporary(err)
	}
	if resp.StatusCode != 200 {
		err := fmt.Errorf("%s: %s", resp.Status, body.String())
		switch resp.StatusCode {
		case 408, 429, 500, 502, 503, 504:
			return nil, service.MakeTemporary(err)
		default:
			return nil, err
		}
	}
	return body.Bytes(), nil
}
