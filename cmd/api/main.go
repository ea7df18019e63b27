package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinescript/internal/config"
	"cinescript/internal/db"
	"cinescript/internal/gateway"
	"cinescript/internal/genai"
	internalhttp "cinescript/internal/http"
	"cinescript/internal/pricing"
	"cinescript/internal/services"
	"cinescript/internal/store"
	"cinescript/internal/worker"
	"cinescript/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logr := logger.New()
	ctx := context.Background()

	var st store.Store
	if cfg.DB.DSN != "" {
		pool, err := db.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
	} else {
		logr.Info("no db dsn configured, using in-memory store")
		st = store.NewMemory()
	}

	pricingSvc, err := pricing.New(cfg.Pay.UnitPrice)
	if err != nil {
		log.Fatalf("invalid unit price: %v", err)
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Pay.APIBase,
		MerchantID:  cfg.Pay.MerchantID,
		SignKey:     cfg.Pay.SignKey,
		NotifyURL:   cfg.Pay.NotifyURL,
		ReturnURL:   cfg.Pay.ReturnURL,
		ProductName: cfg.Pay.ProductName,
	})

	model := genai.NewClient(genai.Config{
		BaseURL:       cfg.GenAI.BaseURL,
		FreeAPIKey:    cfg.GenAI.FreeAPIKey,
		PaidAPIKey:    cfg.GenAI.PaidAPIKey,
		FreeModel:     cfg.GenAI.FreeModel,
		PaidModel:     cfg.GenAI.PaidModel,
		FallbackModel: cfg.GenAI.FallbackModel,
		Timeout:       cfg.GenAITimeout(),
	}, logr)

	events := services.NewOrderEvents()
	analyzeSvc := &services.AnalyzeService{
		Store:     st,
		Model:     model,
		FreeLimit: cfg.Quota.FreeLimit,
		Log:       logr,
	}
	paymentSvc := &services.PaymentService{
		Store:   st,
		Gateway: gw,
		Pricing: pricingSvc,
		Log:     logr,
	}
	callbackSvc := &services.CallbackService{
		Store:       st,
		MerchantID:  cfg.Pay.MerchantID,
		SignKey:     cfg.Pay.SignKey,
		RequireSign: cfg.Pay.RequireSign,
		Events:      events,
		Log:         logr,
	}

	h := internalhttp.NewHandler(analyzeSvc, paymentSvc, callbackSvc, events, logr)
	srv := internalhttp.NewServer(h)

	runCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.Worker.Enabled {
		w := &worker.Worker{
			Store:     st,
			Gateway:   gw,
			Callbacks: callbackSvc,
			MinAge:    time.Duration(cfg.Worker.MinAgeSeconds) * time.Second,
			Interval:  time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
			Log:       logr,
		}
		go w.Run(runCtx)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopWorker()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
