package app

import (
	"context"
	"net/http"
	"time"

	"domainproof/internal/api"
	"domainproof/internal/challenge"
	"domainproof/internal/config"
	"domainproof/internal/domains"
	"domainproof/internal/queue"
	"domainproof/internal/store"
)

type App struct {
	Config     config.Config
	Store      *store.Store
	Queue      *queue.Queue
	Challenges *challenge.Service
	Handler    *api.Handler
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		return nil, err
	}

	var q *queue.Queue
	if cfg.Redis.URL != "" {
		q, err = queue.New(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
	}

	resolver := domains.WithTimeout(domains.NewResolver(), cfg.DNS.Timeout)
	svc := challenge.NewService(st, resolver)

	var events api.VerifiedPublisher
	if q != nil {
		events = q
	}
	handler := api.NewHandler(cfg, svc, events)

	return &App{
		Config:     cfg,
		Store:      st,
		Queue:      q,
		Challenges: svc,
		Handler:    handler,
	}, nil
}

func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	return err
}

func (a *App) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if a.Queue != nil {
			if err := a.Queue.Ping(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	a.Handler.RegisterRoutes(mux)

	var root http.Handler = mux
	if a.Config.RateLimit.RPS > 0 {
		root = api.RateLimit(a.Config.RateLimit.RPS, a.Config.RateLimit.Burst, mux)
	}

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv.ListenAndServe()
}
