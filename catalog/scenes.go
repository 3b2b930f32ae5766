package catalog

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/service"
	"github.com/geoharvest/scene-downloader/service/log"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// CandidateRecord is the outcome of the coverage gate for one candidate scene
type CandidateRecord struct {
	SourceID string                `json:"source_id"`
	Coverage common.CoverageResult `json:"coverage"`
	Accepted bool                  `json:"accepted"`
	Error    string                `json:"error,omitempty"`
}

// Selection summarizes a run of the coverage gate over an inventory
type Selection struct {
	Candidates int               `json:"candidates"`
	Accepted   int               `json:"accepted"`
	Rejected   int               `json:"rejected"`
	Failed     int               `json:"failed"`
	Records    []CandidateRecord `json:"records"`
}

// ScenesInventory makes an inventory of all the scenes covering the area between startDate and endDate
// The scenes are retrieved from the configured catalog, in ascending acquisition time
func (c *Catalog) ScenesInventory(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	scenes, err := c.API.SearchScenes(ctx, area)
	if err != nil {
		return entities.Scenes{}, fmt.Errorf("ScenesInventory.%w", err)
	}

	// Refine inventory
	scenes.Scenes = removeDoubleEntries(scenes.Scenes)
	if scenes.Scenes, err = removeOutsideAOI(scenes.Scenes, area.AOI); err != nil {
		return entities.Scenes{}, fmt.Errorf("ScenesInventory.%w", err)
	}
	sort.SliceStable(scenes.Scenes, func(i, j int) bool {
		return scenes.Scenes[i].Data.TimestampMs < scenes.Scenes[j].Data.TimestampMs
	})

	log.Logger(ctx).Sugar().Debugf("%d scenes found", len(scenes.Scenes))

	return scenes, nil
}

// SelectScenes runs the coverage gate over the inventory of the area, in
// ascending acquisition time, and calls visit for each accepted scene before
// evaluating the next one. An evaluation failure is recorded and the selection
// carries on with the next candidate; an error of visit aborts the selection.
func (c *Catalog) SelectScenes(ctx context.Context, area *entities.Area, visit func(common.AcceptedScene) error) (Selection, error) {
	area.FillDefaults()
	if err := area.Validate(); err != nil {
		return Selection{}, fmt.Errorf("SelectScenes.%w", err)
	}

	scenes, err := c.ScenesInventory(ctx, area)
	if err != nil {
		return Selection{}, fmt.Errorf("SelectScenes.%w", err)
	}

	// All accepted scenes of a run share the grid derived from the area
	transform := common.DeriveTransform(area.ResampleResolution, area.AOI)
	band := area.ReferenceBand()

	selection := Selection{Candidates: len(scenes.Scenes)}
	for i, scene := range scenes.Scenes {
		record := CandidateRecord{SourceID: scene.SourceID}

		coverage, err := c.Evaluate(ctx, scene, area.AOI, band, area.ReferenceScale)
		if err != nil {
			log.Logger(ctx).Sugar().Warnf("SelectScenes[%d] %s: %v", i, scene.SourceID, err)
			record.Error = err.Error()
			selection.Failed++
			selection.Records = append(selection.Records, record)
			continue
		}
		record.Coverage = coverage

		if coverage.Ratio >= area.CoverageThreshold {
			record.Accepted = true
			selection.Accepted++
			log.Logger(ctx).Sugar().Debugf("SelectScenes[%d] %s: accepted (%.4f)", i, scene.SourceID, coverage.Ratio)
			if visit != nil {
				accepted := common.AcceptedScene{
					Scene:         scene.Scene,
					Timestamp:     scene.Data.Time(),
					Area:          area.AOI,
					Transform:     transform,
					CoverageRatio: coverage.Ratio,
				}
				accepted.Scene.AOI = area.AOIID
				accepted.Scene.Data.Bands = area.Bands
				if err := visit(accepted); err != nil {
					selection.Records = append(selection.Records, record)
					return selection, fmt.Errorf("SelectScenes[%d] %s: %w", i, scene.SourceID, err)
				}
			}
		} else {
			selection.Rejected++
			log.Logger(ctx).Sugar().Debugf("SelectScenes[%d] %s: rejected (%.4f < %.4f)", i, scene.SourceID, coverage.Ratio, area.CoverageThreshold)
		}
		selection.Records = append(selection.Records, record)
	}

	if selection.Candidates > 0 && selection.Failed == selection.Candidates {
		return selection, service.MakeTemporary(fmt.Errorf("SelectScenes: all %d candidates failed", selection.Candidates))
	}
	return selection, nil
}

// removeDoubleEntries removes acquisitions that appear twice in the inventory
// Re-catalogued products share the acquisition identifier with a different
// asset id. This routine checks for such appearance and keeps a single one.
func removeDoubleEntries(scenes []*entities.Scene) []*entities.Scene {
	identifiers := map[string]int{}

	j := 0
	for _, scene := range scenes {
		if k, ok := identifiers[scene.SourceID]; !ok {
			scenes[j] = scene
			identifiers[scene.SourceID] = j
			j++
		} else if scenes[k].Data.UUID < scene.Data.UUID {
			scenes[k] = scene
		}
	}

	return scenes[0:j]
}

// removeOutsideAOI removes scenes that are located outside the AOI
// The search routine works over a simplified representation of the AOI.
// This may then include acquisitions that do not overlap with the AOI.
// In this step we sort out the scenes that are completely outside the actual AOI.
func removeOutsideAOI(scenes []*entities.Scene, aoi common.AreaOfInterest) ([]*entities.Scene, error) {
	withFootprint := false
	for _, scene := range scenes {
		if scene.GeometryWKT != "" {
			withFootprint = true
			break
		}
	}
	if !withFootprint {
		return scenes, nil
	}

	gaoi, err := geos.FromWKT(wkt.MustEncode(service.AOIGeometry(aoi)))
	if err != nil {
		return nil, fmt.Errorf("removeOutsideAOI.FromWKT: %w", err)
	}

	// Prepare geometry for intersection
	paoi := gaoi.Prepare()

	j := 0
	for i, scene := range scenes {
		if scene.GeometryWKT == "" {
			scenes[j] = scenes[i]
			j++
			continue
		}
		footprint, err := geos.FromWKT(scene.GeometryWKT)
		if err != nil {
			return nil, fmt.Errorf("removeOutsideAOI.FromWKT: %w", err)
		}
		intersect, err := paoi.Intersects(footprint)
		if err != nil {
			return nil, fmt.Errorf("removeOutsideAOI.Intersects: %w", err)
		}
		if intersect {
			scenes[j] = scenes[i]
			j++
		}
	}
	runtime.KeepAlive(gaoi)

	return scenes[0:j], nil
}
