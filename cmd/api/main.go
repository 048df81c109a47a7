package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/order-inventory/internal/breaker"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/config"
	"github.com/ariefcatur/order-inventory/internal/dynamo"
	"github.com/ariefcatur/order-inventory/internal/events"
	"github.com/ariefcatur/order-inventory/internal/httpx"
	"github.com/ariefcatur/order-inventory/internal/inventory"
	kafkax "github.com/ariefcatur/order-inventory/internal/kafka"
	"github.com/ariefcatur/order-inventory/internal/logging"
	"github.com/ariefcatur/order-inventory/internal/memstore"
	"github.com/ariefcatur/order-inventory/internal/orders"
	"github.com/ariefcatur/order-inventory/internal/postgres"
	"github.com/ariefcatur/order-inventory/internal/redisx"
	"github.com/ariefcatur/order-inventory/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// ledger is what the inventory service needs from a stock backend.
type ledger interface {
	inventory.StockLedger
	inventory.LowStockLister
	catalog.ProductStore
}

type stores struct {
	customers orders.CustomerLookup
	catalog   catalog.ProductStore
	ledger    ledger
	orders    orders.Repository
	close     func()
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("telemetry setup", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("open stores", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer st.close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	products := catalog.NewCachedProducts(st.ledger, redisx.NewProductCache(rdb, cfg.ProductCacheTTL, log), log)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	pub := events.NewPublisher(prod, cfg.ServiceName, cfg.RetryAttempts, log)

	bs := breaker.Settings{
		FailureRatio: cfg.BreakerFailureRatio,
		MinRequests:  cfg.BreakerMinRequests,
		OpenTimeout:  cfg.BreakerOpenTimeout,
	}
	invBreaker, ordBreaker := bs, bs
	invBreaker.Name, ordBreaker.Name = "inventory", "orders"

	inv := inventory.NewService(st.ledger, pub, products, st.ledger,
		inventory.Options{Breaker: invBreaker, RetryAttempts: cfg.RetryAttempts}, log)
	ord := orders.NewService(st.orders, st.customers, products, inv, pub,
		orders.Options{Breaker: ordBreaker, RetryAttempts: cfg.RetryAttempts}, log)

	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{Orders: ord, Idem: redisx.NewIdempotency(rdb), Log: log}).Register(router)
	(&httpx.InventoryHandler{Inventory: inv, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store), zap.String("ledger", cfg.Ledger))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if err := prod.Close(); err != nil {
		log.Warn("kafka producer close", zap.Error(err))
	}
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracer shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	var st stores
	switch cfg.Store {
	case "memory":
		products, customers := memstore.NewProducts(), memstore.NewCustomers()
		memstore.Seed(products, customers)
		st = stores{customers: customers, catalog: products, ledger: products, orders: memstore.NewOrders(), close: func() {}}
		log.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		products := &postgres.ProductRepo{DB: db}
		st = stores{
			customers: &postgres.CustomerRepo{DB: db},
			catalog:   products,
			ledger:    products,
			orders:    &postgres.OrderRepo{DB: db},
			close:     db.Close,
		}
	}

	if cfg.Ledger == "dynamodb" {
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion)
		if err != nil {
			st.close()
			return nil, err
		}
		st.ledger = dynamo.NewLedger(client, cfg.DynamoStockTable, st.catalog)
		log.Info("stock ledger on dynamodb", zap.String("table", cfg.DynamoStockTable))
	}
	return &st, nil
}
