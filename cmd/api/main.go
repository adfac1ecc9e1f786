package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	"shop/internal/handler"
	"shop/internal/infra/db"
	"shop/internal/infra/event"
	infraRepo "shop/internal/infra/repository"
	"shop/internal/logging"
	"shop/internal/server"
	"shop/internal/usecase"
	"shop/internal/validator"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envはローカル開発用。無くても環境変数があれば動く
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.LogLevel)

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Error("db connect failed", "error", err)
		os.Exit(1)
	}

	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Product{},
		&model.ProductColor{},
		&model.Cart{},
		&model.CartItem{},
		&model.Address{},
		&model.Order{},
		&model.OrderItem{},
		&model.Notification{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	notificationRepo := infraRepo.NewNotificationGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//Kafka（ブローカー未設定ならイベント発行しない）
	var events usecase.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := event.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = producer
		log.Info("kafka producer enabled", "topic", cfg.KafkaTopic)
	}

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	authValidator := validator.NewAuthValidator(userRepo)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo, rtRepo, authValidator)
	productUC := usecase.NewProductUsecase(productRepo, inventoryRepo, auditRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, userRepo)
	addressUC := usecase.NewAddressUsecase(addressRepo)
	notificationUC := usecase.NewNotificationUsecase(notificationRepo)
	orderUC := usecase.NewOrderUsecase(
		txManager,
		userRepo,
		addressRepo,
		events,
		idGen,
		clock,
		cfg.UserCancelWindow,
		cfg.AssetBaseURL,
		log,
	)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, auditRepo, events, log)

	//Handler生成
	cookieSecure := cfg.GoEnv != "dev"
	handlers := server.Handlers{
		Auth:         handler.NewAuthHandler(authUC, cookieSecure),
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		AdminUser:    handler.NewAdminUserHandler(cfg, userRepo, authUC),
		Cart:         handler.NewCartHandler(cartUC),
		Address:      handler.NewAddressHandler(addressUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		Notification: handler.NewNotificationHandler(notificationUC),
	}

	e := server.New(cfg, log, userRepo, handlers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server", "port", cfg.Port)
	if err := server.Start(ctx, e, cfg.Port, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
