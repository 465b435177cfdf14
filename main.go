package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"memesync/api"
	"memesync/config"
	"memesync/face"
	"memesync/media"
	"memesync/pipeline"
	"memesync/speech"
	"memesync/store"
	"memesync/task"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	for _, dir := range []string{cfg.TempDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("could not create data directory")
		}
	}

	st := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.JobTTL)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		cancel()
		log.WithError(err).Fatal("redis is not reachable")
	}
	cancel()

	detector, err := face.NewDetector(cfg.CascadePath)
	if err != nil {
		log.WithError(err).Fatal("failed to load face cascade")
	}

	synth, err := speech.NewEdgeTTS(cfg.TTSBin, cfg.TTSExtraArgs, media.NewExecRunner(log))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize speech synthesizer")
	}

	orch, err := pipeline.NewOrchestrator(cfg, st, synth, detector, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}

	manager := task.NewManager(cfg, st, orch, log)

	router := api.SetupRouter(manager, st, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Start(ctx)

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exiting")
}
