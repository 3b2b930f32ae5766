package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/service"
	"github.com/geoharvest/scene-downloader/service/log"
	"github.com/go-spatial/geom"
	"github.com/gorilla/mux"
)

const areaJSONField = "area"
const aoiJSONField = "aoi"

// AddHandler registers the catalog routes. submit receives each scene that
// passes the coverage gate of a selection request.
func (c *Catalog) AddHandler(r *mux.Router, submit func(common.AcceptedScene) error) {
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("GET")
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("POST")
	r.HandleFunc("/catalog/selection", c.SelectionHandler(submit)).Methods("POST")
}

func readField(req *http.Request, field string) ([]byte, error) {
	if req.FormValue(field) != "" {
		return []byte(req.FormValue(field)), nil
	}
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	io.Copy(&buf, file)
	return buf.Bytes(), nil
}

func loadArea(req *http.Request) (entities.Area, error) {
	area := entities.Area{}
	areaJSON, err := readField(req, areaJSONField)
	if err != nil {
		return area, err
	}
	if len(areaJSON) == 0 {
		return area, fmt.Errorf("loadArea: missing required field: '%s' (application/json)", areaJSONField)
	}
	if err := json.Unmarshal(areaJSON, &area); err != nil {
		return area, fmt.Errorf("loadArea: %w\nJSON:\n%s", err, areaJSON)
	}

	// An explicit geojson aoi overrides the rectangle, reduced to its bounding box
	if aoiJSON, err := readField(req, aoiJSONField); err == nil && len(aoiJSON) > 0 {
		g, err := service.UnmarshalGeometry(aoiJSON)
		if err != nil {
			return area, fmt.Errorf("loadArea: %w", err)
		}
		extent, err := geom.NewExtentFromGeometry(g)
		if err != nil {
			return area, fmt.Errorf("loadArea: %w", err)
		}
		area.AOI = common.AreaOfInterest{
			LonMin: extent.MinX(), LonMax: extent.MaxX(),
			LatMin: extent.MinY(), LatMax: extent.MaxY(),
		}
	}

	area.FillDefaults()
	if err := area.Validate(); err != nil {
		return area, fmt.Errorf("loadArea: %w", err)
	}
	return area, nil
}

// ScenesHandler lists scenes for a given AOI, bands and interval of time and returns a json
func (c *Catalog) ScenesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	area, err := loadArea(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	scenes, err := c.ScenesInventory(ctx, &area)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.ScenesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}

	if err := json.NewEncoder(w).Encode(scenes); err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.ScenesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
	}
}

// SelectionHandler runs the coverage gate over the area and returns the report.
// The accepted scenes are handed to the job callback of the catalog owner.
func (c *Catalog) SelectionHandler(submit func(common.AcceptedScene) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		area, err := loadArea(req)
		if err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", err)
			return
		}

		selection, err := c.SelectScenes(ctx, &area, submit)
		if err != nil {
			log.Logger(ctx).Sugar().Warnf("catalog.SelectionHandler.%v", err)
			w.WriteHeader(500)
			fmt.Fprintf(w, "%v", err)
			return
		}

		if err := json.NewEncoder(w).Encode(selection); err != nil {
			log.Logger(ctx).Sugar().Warnf("catalog.SelectionHandler.%v", err)
			w.WriteHeader(500)
			fmt.Fprintf(w, "%v", err)
		}
	}
}
