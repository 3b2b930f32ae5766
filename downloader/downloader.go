package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/interface/catalog"
	"github.com/geoharvest/scene-downloader/interface/provider"
	"github.com/geoharvest/scene-downloader/processor"
	"github.com/geoharvest/scene-downloader/service"
	"github.com/geoharvest/scene-downloader/service/log"
	"github.com/google/uuid"
)

// Options of the scene processing
type Options struct {
	// CRS of the export
	CRS string
	// Resampling method of the export
	Resampling string
	// DNScale is the divisor turning digital numbers into reflectance
	DNScale float64
	// PostProcess crops the one-pixel halo and corrects the georeferencing
	PostProcess bool
}

// DefaultOptions of a Sentinel-2 reflectance export
func DefaultOptions() Options {
	return Options{
		CRS:         "EPSG:4326",
		Resampling:  "bilinear",
		DNScale:     common.ReflectanceScale,
		PostProcess: true,
	}
}

// ProcessScene exports an accepted scene, downloads it, post-processes the
// raster and saves the product. It returns the uri of the product.
func ProcessScene(ctx context.Context, api catalog.SceneAPI, imageProviders []provider.ImageProvider, storageService service.Storage, scene common.AcceptedScene, workdir string, opts Options) (string, error) {
	// Working dir
	workdir = filepath.Join(workdir, uuid.New().String())

	if err := os.MkdirAll(workdir, 0766); err != nil {
		return "", service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer os.RemoveAll(workdir)

	product := common.ProductName(common.SensorSentinel2, scene.Area, scene.Timestamp)
	localFile := filepath.Join(workdir, product)

	// Request the export
	log.Logger(ctx).Sugar().Infof("exporting %s", scene.Scene.SourceID)
	entity := entities.Scene{Scene: scene.Scene}
	url, err := api.ExportScene(ctx, &entity, catalog.ExportRequest{
		Area:       scene.Area,
		CRS:        opts.CRS,
		Transform:  scene.Transform,
		Resampling: opts.Resampling,
		Bands:      scene.Scene.Data.Bands,
		DNScale:    opts.DNScale,
	})
	if err != nil {
		return "", fmt.Errorf("ProcessScene.%w", err)
	}

	// Download with the first successful imageProvider
	log.Logger(ctx).Sugar().Infof("downloading %s", scene.Scene.SourceID)
	for _, imageProvider := range imageProviders {
		e := imageProvider.Download(ctx, url, localFile)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
		log.Logger(ctx).Sugar().Warnf("%v", e)
	}
	if err != nil {
		return "", fmt.Errorf("ProcessScene.ImageProviders.%w", err)
	}

	if opts.PostProcess {
		log.Logger(ctx).Sugar().Infof("processing %s", scene.Scene.SourceID)
		if err := processor.ProcessFile(ctx, localFile, scene.Transform); err != nil {
			return "", fmt.Errorf("ProcessScene.%w", err)
		}
	}

	uri, err := storageService.SaveProduct(ctx, localFile, product)
	if err != nil {
		return "", fmt.Errorf("ProcessScene.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("saved %s", uri)
	return uri, nil
}
