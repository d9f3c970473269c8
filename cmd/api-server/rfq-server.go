package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"rfqmarket/db"
	"rfqmarket/db/migrations"
	"rfqmarket/internal/auth"
	"rfqmarket/internal/careers"
	"rfqmarket/internal/config"
	"rfqmarket/internal/contacts"
	"rfqmarket/internal/forms"
	"rfqmarket/internal/handlers"
	"rfqmarket/internal/logging"
	"rfqmarket/internal/negotiation"
	"rfqmarket/internal/notify"
	"rfqmarket/internal/orders"
	"rfqmarket/internal/quotes"
	"rfqmarket/internal/rfq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("cannot connect to DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB, migrations.Dialect(cfg.Database.Driver)); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	catalog, err := loadCatalog(cfg.Forms.TemplatesPath)
	if err != nil {
		logger.Fatal("cannot load form templates", zap.Error(err))
	}

	store := db.NewStorage(dbConn)
	dispatcher := notify.NewDispatcher(notify.NewStoreNotifier(store), notify.NewLogSMSSender(logger), logger)
	access := contacts.NewAccess(store)

	hiring := careers.NewService(store, access, dispatcher, logger)
	jobOrders := orders.NewService(store, hiring, dispatcher, logger)

	h := handlers.NewHandler(handlers.Services{
		RFQ:           rfq.NewService(store, catalog, dispatcher, logger),
		Quotes:        quotes.NewService(store, access, dispatcher, logger),
		Negotiations:  negotiation.NewService(store, jobOrders, dispatcher, logger),
		Orders:        jobOrders,
		Careers:       hiring,
		Notifications: store,
	}, logger)

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: handlers.NewRouter(h, tokens, cfg.RateLimit),
	}

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	// дожидаемся фоновых рассылок
	dispatcher.Wait()
}

func loadCatalog(path string) (*forms.Catalog, error) {
	if path == "" {
		return forms.Default()
	}
	return forms.LoadFile(path)
}
