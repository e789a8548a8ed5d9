package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"proctorcap/internal/api"
	"proctorcap/internal/assessment"
	"proctorcap/internal/capture"
	"proctorcap/internal/config"
	"proctorcap/internal/logging"
	"proctorcap/internal/media/ffmpeg"
	"proctorcap/internal/models"
	"proctorcap/internal/orchestrator"
	"proctorcap/internal/s3"
	"proctorcap/internal/service"
	"proctorcap/internal/upload"
)

// configurable is the part of an orchestrator that accepts a destination.
type configurable interface {
	Configure(u upload.Uploader) bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "🚨 Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Environment)

	profiles, err := config.LoadCaptureProfiles()
	if err != nil {
		log.Fatal().Err(err).Msg("🚨 Failed to load capture profiles")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// uploads outlive the signal so they can drain during shutdown
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	factory := ffmpeg.NewFactory(cfg.FFmpegPath, log)
	camera := ffmpeg.NewCameraSource(cfg.FFmpegPath,
		ffmpeg.Device{Format: cfg.CameraInputFormat, Name: cfg.CameraDevice},
		ffmpeg.Device{Format: cfg.MicrophoneFormat, Name: cfg.MicrophoneDevice},
		log)
	display := ffmpeg.NewDisplaySource(cfg.FFmpegPath,
		ffmpeg.Device{Format: cfg.DisplayInputFormat, Name: cfg.DisplayDevice},
		log)
	grabber := ffmpeg.NewGrabber(cfg.FFmpegPath)

	imageCfg := profiles.GetCaptureConfig(string(models.KindImage))

	var videoOrch *orchestrator.ChunkOrchestrator
	videoSession := capture.NewVideoSession(camera, factory, profiles.GetCaptureConfig(string(models.KindVideo)), func(err error) {
		videoOrch.HandleDeviceLost(err)
	}, log)
	videoOrch = orchestrator.NewChunkOrchestrator(workCtx, models.KindVideo, videoSession, cfg.UploadConcurrency, statusCallbacks(log, models.KindVideo), log)

	var screenOrch *orchestrator.ChunkOrchestrator
	screenSession := capture.NewScreenSession(display, factory, profiles.GetCaptureConfig(string(models.KindScreen)), func(err error) {
		screenOrch.HandleDeviceLost(err)
	}, log)
	screenOrch = orchestrator.NewChunkOrchestrator(workCtx, models.KindScreen, screenSession, cfg.UploadConcurrency, statusCallbacks(log, models.KindScreen), log)

	still := capture.NewStillSession(camera, grabber, imageCfg.Interval(), log)
	imageOrch := orchestrator.NewImageOrchestrator(workCtx, still, service.NewImageService(imageCfg, log), imageCfg.Concurrency, statusCallbacks(log, models.KindImage), log)

	targets := map[models.MediaKind]configurable{
		models.KindVideo:  videoOrch,
		models.KindScreen: screenOrch,
		models.KindImage:  imageOrch,
	}
	onStart, err := configureDestinations(ctx, workCtx, cfg, targets, log)
	if err != nil {
		log.Fatal().Err(err).Msg("🚨 Failed to configure upload destinations")
	}

	captureAPI := api.NewCaptureAPI(map[models.MediaKind]api.Recorder{
		models.KindVideo:  videoOrch,
		models.KindScreen: screenOrch,
	}, onStart, logging.Component(log, "capture-api"))
	imageAPI := api.NewImageAPI(imageOrch, imageCfg.MaxBytes, onStart, logging.Component(log, "image-api"))

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: api.NewRouter(captureAPI, imageAPI, api.RouterOptions{
			APIKey:         cfg.APIKey,
			AllowedOrigins: cfg.AllowedOrigins,
			Log:            logging.Component(log, "http"),
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server 🚀")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start 🚨")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server... 🛑")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown 🚨")
	}

	// stopping flushes the in-flight chunk into the upload path
	for _, o := range []*orchestrator.ChunkOrchestrator{videoOrch, screenOrch} {
		if err := o.StopRecording(); err != nil {
			log.Warn().Err(err).Str("kind", string(o.Kind())).Msg("stop recording failed")
		}
		o.Cleanup()
	}
	imageOrch.Cleanup()

	for kind, wait := range map[models.MediaKind]func(context.Context) error{
		models.KindVideo:  videoOrch.Wait,
		models.KindScreen: screenOrch.Wait,
		models.KindImage:  imageOrch.Wait,
	} {
		if err := wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("uploads still in flight at shutdown")
		}
	}
	cancelWork()

	log.Info().Msg("Server exited")
}

func statusCallbacks(log zerolog.Logger, kind models.MediaKind) orchestrator.Callbacks {
	log = log.With().Str("kind", string(kind)).Logger()
	return orchestrator.Callbacks{
		OnStatusChange: func(status models.UploadStatus) {
			log.Trace().Interface("status", status).Msg("status changed")
		},
		OnUploadComplete: func(result models.UploadResult) {
			log.Debug().Str("key", result.Key).Bool("skipped", result.Skipped).Msg("upload complete")
		},
		OnError: func(err error) {
			log.Error().Err(err).Msg("capture pipeline error")
		},
	}
}

// configureDestinations picks the upload path. Local credentials configure
// direct uploaders immediately; otherwise the assessment backend is polled
// for presigned destinations once the first session starts.
func configureDestinations(ctx, workCtx context.Context, cfg *config.Config, targets map[models.MediaKind]configurable, log zerolog.Logger) (api.SessionHook, error) {
	switch {
	case cfg.DryRun:
		noop := upload.NewNoopUploader(log)
		for _, t := range targets {
			t.Configure(noop)
		}
		log.Warn().Msg("dry run: uploads are discarded")
		return nil, nil

	case cfg.HasDirectCredentials():
		client, err := s3.NewClient(ctx, cfg.S3Region, cfg.S3Bucket, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		direct := upload.NewDirectUploader(client, cfg.S3Folder, upload.DefaultRetryPolicy(), log)
		for _, t := range targets {
			t.Configure(direct)
		}
		log.Info().Str("bucket", cfg.S3Bucket).Str("folder", cfg.S3Folder).Msg("direct uploads enabled")
		return nil, nil

	case cfg.AssessmentAPIURL != "":
		backend := assessment.NewClient(cfg.AssessmentAPIURL, cfg.AssessmentAPIToken, log)
		var once sync.Once
		return func(candidateID, assessmentID string) {
			once.Do(func() {
				go pollDestinations(workCtx, backend, candidateID, assessmentID, cfg.AssessmentPollInterval, targets, log)
			})
		}, nil
	}

	log.Warn().Msg("no upload destination configured: chunks and images will be skipped")
	return nil, nil
}

func pollDestinations(ctx context.Context, backend *assessment.Client, candidateID, assessmentID string, interval time.Duration, targets map[models.MediaKind]configurable, log zerolog.Logger) {
	dest, err := backend.WaitForDestinations(ctx, assessmentID, candidateID, interval)
	if err != nil {
		log.Error().Err(err).Str("assessment_id", assessmentID).Msg("upload destinations unavailable")
		return
	}

	for kind, t := range targets {
		post := dest.For(kind)
		if post == nil {
			log.Warn().Str("kind", string(kind)).Msg("backend issued no destination")
			continue
		}
		t.Configure(upload.NewPresignedPostUploader(*post, nil, log))
	}
}
