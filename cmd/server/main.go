package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"trackmage-bridge/internal/config"
	"trackmage-bridge/internal/db"
	"trackmage-bridge/internal/httpserver"
	"trackmage-bridge/internal/queue"
	orderrepo "trackmage-bridge/internal/repository/order"
	productrepo "trackmage-bridge/internal/repository/product"
	settingsrepo "trackmage-bridge/internal/repository/settings"
	shipmentrepo "trackmage-bridge/internal/repository/shipment"
	syncengine "trackmage-bridge/internal/sync"
	"trackmage-bridge/internal/trackmage"
	"trackmage-bridge/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	orders := orderrepo.NewPostgres(dbpool, logger)
	shipments := shipmentrepo.NewPostgres(dbpool, logger)
	products := productrepo.NewPostgres(dbpool, logger)
	settings := settingsrepo.NewPostgres(dbpool, logger)
	client := trackmage.New(cfg.TrackMageAPIURL, cfg.TrackMageToken, logger)

	synchronizer := syncengine.NewSynchronizer(syncengine.SynchronizerDeps{
		Orders:        syncengine.NewOrderSync(orders, client, settings, logger),
		OrderItems:    syncengine.NewOrderItemSync(orders, client, settings, logger),
		Shipments:     syncengine.NewShipmentSync(shipments, orders, client, settings, logger),
		ShipmentItems: syncengine.NewShipmentItemSync(shipments, orders, client, settings, logger),
		Products:      syncengine.NewProductSync(products, client, settings, logger),
		OrderStore:    orders,
		ShipmentStore: shipments,
		ProductStore:  products,
	}, logger)

	producer := queue.NewProducer(queue.NewPostgres(dbpool, logger), orders)

	dispatcher := webhook.NewDispatcher(logger,
		webhook.NewOrdersMapper(orders, settings, logger),
		webhook.NewOrderItemsMapper(orders, settings, logger),
		webhook.NewShipmentsMapper(shipments, settings, logger),
		webhook.NewShipmentItemsMapper(shipments, orders, settings, logger),
	)

	srv := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Dispatcher:   dispatcher,
		Synchronizer: synchronizer,
		Producer:     producer,
		Orders:       orders,
		Shipments:    shipments,
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
