package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kaggather/gatherd/internal/config"
	"github.com/kaggather/gatherd/internal/gather"
	"github.com/kaggather/gatherd/internal/hostlink"
	"github.com/kaggather/gatherd/internal/httpapi"
	"github.com/kaggather/gatherd/internal/identity"
	"github.com/kaggather/gatherd/internal/store"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("loading config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stats and linking degrade to unavailable when the database is down
	// or unconfigured; queue and session operations keep working.
	var st *store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.Open(cfg.DatabaseURL, log)
		if err != nil {
			log.Warn("database unavailable, stats and linking disabled", zap.Error(err))
			st = nil
		}
	} else {
		log.Warn("no DATABASE_URL, stats and linking disabled")
	}

	links := make([]*hostlink.Link, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		links = append(links, hostlink.New(h.Key, h.Password, log))
	}

	orc := gather.New(ctx, gather.Options{
		QueueSize:      cfg.QueueSize,
		ScrambleQuorum: cfg.ScrambleQuorum,
		SubQuorum:      cfg.SubQuorum,
	}, links, resultSaver(st), log)
	orc.ConnectHosts()

	api := &httpapi.API{Orc: orc, Log: log}
	if st != nil {
		api.Accounts = st
		api.Verifier = identity.NewClient(cfg.IdentityAPI)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.SetupRoutes(api)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		orc.Shutdown()
		for _, l := range links {
			l.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// resultSaver avoids handing the orchestrator a non-nil interface wrapping
// a nil *store.Store.
func resultSaver(st *store.Store) gather.ResultSaver {
	if st == nil {
		return nil
	}
	return st
}
