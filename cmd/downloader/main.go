package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/geoharvest/scene-downloader/catalog"
	"github.com/geoharvest/scene-downloader/catalog/entities"
	"github.com/geoharvest/scene-downloader/common"
	"github.com/geoharvest/scene-downloader/downloader"
	eecatalog "github.com/geoharvest/scene-downloader/interface/catalog/earthengine"
	"github.com/geoharvest/scene-downloader/interface/messaging"
	"github.com/geoharvest/scene-downloader/interface/provider"
	"github.com/geoharvest/scene-downloader/service"
	"github.com/geoharvest/scene-downloader/service/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

const eeScope = "https://www.googleapis.com/auth/earthengine"

type config struct {
	Area       string
	WorkingDir string
	StorageURI string
	Port       int

	EEProject    string
	EEEndpoint   string
	EECollection string

	PsProject  string
	JobQueue   string
	JobTopic   string
	EventQueue string
	MaxTries   int

	LocalProviderPath string
	NoPostProcess     bool
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Area, "area", "", "json file of the area to process (one-shot mode)")
	flag.StringVar(&config.WorkingDir, "workdir", os.TempDir(), "working directory to store intermediate results")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (currently supported: local, gs). To store the downloaded products.")
	flag.IntVar(&config.Port, "port", 8080, "port of the http server")

	// Earth Engine
	flag.StringVar(&config.EEProject, "ee-project", "", "earth engine cloud project")
	flag.StringVar(&config.EEEndpoint, "ee-endpoint", eecatalog.DefaultEndpoint, "earth engine endpoint")
	flag.StringVar(&config.EECollection, "ee-collection", eecatalog.S2Collection, "earth engine image collection")

	// Messaging
	flag.StringVar(&config.PsProject, "ps-project", "", "pubsub subscription project (gcp only/not required in local usage)")
	flag.StringVar(&config.JobQueue, "job-queue", "", "name of the pubsub subscription for scene jobs")
	flag.StringVar(&config.JobTopic, "job-topic", "", "name of the pubsub topic for scene jobs (to submit the scenes accepted by a selection)")
	flag.StringVar(&config.EventQueue, "event-queue", "", "name of the pubsub topic for job events")
	flag.IntVar(&config.MaxTries, "max-tries", 15, "number of tries before a job is abandoned")

	// Providers
	flag.StringVar(&config.LocalProviderPath, "local-path", "", "local path where exported images are stored (optional). To configure a local path as a potential image Provider.")
	flag.BoolVar(&config.NoPostProcess, "no-postprocess", false, "store the products as exported, without the one-pixel crop")

	flag.Parse()

	if config.StorageURI == "" {
		return nil, fmt.Errorf("missing storage-uri config flag")
	}
	if config.EEProject == "" {
		return nil, fmt.Errorf("missing ee-project config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	godal.RegisterAll()
	if strings.HasPrefix(config.StorageURI, "gs://") {
		gcsr, err := gcs.Handle(ctx)
		if err != nil {
			return fmt.Errorf("gcs.Handle: %w", err)
		}
		gcsa, err := osio.NewAdapter(gcsr)
		if err != nil {
			return fmt.Errorf("osio.NewAdapter: %w", err)
		}
		if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
			return fmt.Errorf("godal.RegisterVSIHandler: %w", err)
		}
	}

	// Earth engine session
	session, err := google.DefaultTokenSource(ctx, eeScope)
	if err != nil {
		return fmt.Errorf("earthengine session: %w", err)
	}
	api := eecatalog.NewProvider(ctx, config.EEProject, session)
	api.Endpoint = config.EEEndpoint
	api.Collection = config.EECollection
	c := catalog.Catalog{API: api}

	storageService, err := service.NewStorageStrategy(ctx, config.StorageURI)
	if err != nil {
		return fmt.Errorf("storage %s: %w", config.StorageURI, err)
	}

	// Load image providers
	var imageProviders []provider.ImageProvider
	var providerNames []string
	if config.LocalProviderPath != "" {
		providerNames = append(providerNames, "local ("+config.LocalProviderPath+")")
		imageProviders = append(imageProviders, provider.NewLocalImageProvider(config.LocalProviderPath))
	}
	{
		providerNames = append(providerNames, "HTTP")
		imageProviders = append(imageProviders, provider.NewHTTPImageProvider(""))
	}

	opts := downloader.DefaultOptions()
	opts.PostProcess = !config.NoPostProcess

	processScene := func(ctx context.Context, scene common.AcceptedScene) error {
		_, err := downloader.ProcessScene(ctx, api, imageProviders, storageService, scene, config.WorkingDir, opts)
		return err
	}

	// One-shot mode
	if config.Area != "" {
		return processArea(ctx, &c, config.Area, config.WorkingDir, processScene)
	}

	var eventPublisher messaging.Publisher
	var jobPublisher *messaging.PubSubPublisher
	var jobConsumer *messaging.PubSubConsumer
	var logMessaging string
	if config.JobQueue != "" {
		logMessaging = fmt.Sprintf(" pulling on pubsub:%s/%s", config.PsProject, config.JobQueue)
		if jobConsumer, err = messaging.NewPubSubConsumer(ctx, config.PsProject, config.JobQueue); err != nil {
			return fmt.Errorf("pubsub.NewConsumer: %w", err)
		}
		defer jobConsumer.Stop()
	}
	if config.JobTopic != "" {
		logMessaging += fmt.Sprintf(" submitting on pubsub:%s/%s", config.PsProject, config.JobTopic)
		if jobPublisher, err = messaging.NewPubSubPublisher(ctx, config.PsProject, config.JobTopic); err != nil {
			return fmt.Errorf("pubsub.NewPublisher: %w", err)
		}
		defer jobPublisher.Stop()
	}
	if config.EventQueue != "" {
		logMessaging += fmt.Sprintf(" pushing on pubsub:%s/%s", config.PsProject, config.EventQueue)
		eventTopic, err := messaging.NewPubSubPublisher(ctx, config.PsProject, config.EventQueue)
		if err != nil {
			return fmt.Errorf("pubsub.NewPublisher: %w", err)
		}
		defer eventTopic.Stop()
		eventPublisher = eventTopic
	}

	// A selection submits its accepted scenes to the job queue, or processes
	// them right away when no queue is configured
	submit := func(scene common.AcceptedScene) error {
		if jobPublisher != nil {
			data, err := json.Marshal(scene)
			if err != nil {
				return fmt.Errorf("submit.Marshal: %w", err)
			}
			if err := jobPublisher.Publish(ctx, data); err != nil {
				return fmt.Errorf("submit.Publish: %w", err)
			}
			if err := publishResult(ctx, eventPublisher, scene.Scene.ID, common.StatusNEW, ""); err != nil {
				log.Logger(ctx).Warn("failed to report submitted scene", zap.Error(err))
			}
			return nil
		}
		return processScene(ctx, scene)
	}

	g, gctx := errgroup.WithContext(ctx)

	// HTTP Server
	r := mux.NewRouter()
	c.AddHandler(r, submit)
	s := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: handlers.CombinedLoggingHandler(os.Stdout, r),
	}
	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("downloader.ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
		defer cncl()
		return s.Shutdown(sctx)
	})

	// Job mode
	if jobConsumer != nil {
		log.Logger(ctx).Debug("downloader starts" + logMessaging + " downloading from " + strings.Join(providerNames, ", ") + " exporting to " + config.StorageURI)
		g.Go(func() error {
			return pullJobs(gctx, jobConsumer, eventPublisher, config.MaxTries, processScene)
		})
	}

	return g.Wait()
}

func pullJobs(ctx context.Context, jobConsumer messaging.Consumer, eventPublisher messaging.Publisher, maxTries int, processScene func(context.Context, common.AcceptedScene) error) error {
	for {
		err := jobConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) (err error) {
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			status := common.StatusRETRY
			scene := common.AcceptedScene{}
			message := ""

			if err := json.Unmarshal(msg.Data, &scene); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			} else if scene.Scene.SourceID == "" {
				return fmt.Errorf("invalid payload: missing scene")
			}

			ctx = log.With(ctx, "image", scene.Scene.SourceID)

			defer func() {
				if err != nil {
					message = err.Error()
					if service.Temporary(err) && !service.Fatal(err) {
						log.Logger(ctx).Warn("job temporary failure", zap.Error(err))
						status = common.StatusRETRY
					} else {
						log.Logger(ctx).Warn("job failed", zap.Error(err))
						status = common.StatusFAILED
					}
				}
				if e := publishResult(ctx, eventPublisher, scene.Scene.ID, status, message); e != nil {
					err = service.MakeTemporary(fmt.Errorf("failed to enqueue result: %w", e))
					return
				}
				if status == common.StatusFAILED {
					// the failure is reported, don't redeliver the job
					err = nil
				}
			}()
			if msg.TryCount > maxTries {
				return service.MakeFatal(fmt.Errorf("too many retries"))
			}

			if e := publishResult(ctx, eventPublisher, scene.Scene.ID, common.StatusPENDING, ""); e != nil {
				log.Logger(ctx).Warn("failed to report pending scene", zap.Error(e))
			}

			if err := processScene(ctx, scene); err != nil {
				if msg.TryCount >= maxTries {
					return service.MakeFatal(fmt.Errorf("too many retries: %w", err))
				}
				return err
			}
			log.Logger(ctx).Sugar().Infof("successfully processed scene %s", scene.Scene.SourceID)
			status = common.StatusDONE
			return
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// publishResult reports the status of a scene on the event queue, if any
func publishResult(ctx context.Context, eventPublisher messaging.Publisher, sceneID int, status common.Status, message string) error {
	if eventPublisher == nil {
		return nil
	}
	res := common.Result{
		Type:    common.ResultTypeScene,
		ID:      sceneID,
		Status:  status,
		Message: message,
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("publishResult.Marshal: %w", err)
	}
	if err := eventPublisher.Publish(ctx, data); err != nil {
		return fmt.Errorf("publishResult.Publish: %w", err)
	}
	return nil
}

func processArea(ctx context.Context, c *catalog.Catalog, jsonPath, workingDir string, processScene func(context.Context, common.AcceptedScene) error) error {
	var areaJSON []byte
	var err error
	if strings.HasPrefix(jsonPath, "http://") || strings.HasPrefix(jsonPath, "https://") {
		if areaJSON, err = service.GetBodyRetry(jsonPath, 3); err != nil {
			return err
		}
	} else if areaJSON, err = os.ReadFile(jsonPath); err != nil {
		return err
	}
	area := entities.Area{}
	if err := json.Unmarshal(areaJSON, &area); err != nil {
		return err
	}

	selection, err := c.SelectScenes(ctx, &area, func(scene common.AcceptedScene) error {
		return service.Retriable(ctx, func() error { return processScene(ctx, scene) }, time.Minute, 3)
	})
	if err != nil {
		return fmt.Errorf("processArea.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d candidates, %d accepted, %d rejected, %d failed",
		selection.Candidates, selection.Accepted, selection.Rejected, selection.Failed)
	return service.ToJSON(selection, workingDir, area.AOIID+"-selection.json")
}
