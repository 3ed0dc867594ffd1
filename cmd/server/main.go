package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/tmeras/resellmart/internal/app"
	"github.com/tmeras/resellmart/internal/app/handlers"
	"github.com/tmeras/resellmart/internal/config"
	"github.com/tmeras/resellmart/internal/jwt-new/jwtmiddleware"
	"github.com/tmeras/resellmart/internal/lib/logger"
	"github.com/tmeras/resellmart/internal/lib/logger/handlers/urllog"
	"github.com/tmeras/resellmart/internal/notify"
	"github.com/tmeras/resellmart/internal/service"
	"github.com/tmeras/resellmart/internal/storage"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	addressRepo := storage.NewAddressRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	cartRepo := storage.NewCartRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	statsRepo := storage.NewStatsRepository(application.DB)

	// фоновая обработка заказов: пул воркеров и рассылка уведомлений
	notifier := notify.NewLogNotifier(application.Logger)
	fulfilment := service.NewFulfilmentService(
		application.Logger, orderRepo, productRepo, cartRepo, userRepo, notifier,
		cfg.Fulfilment.Workers, cfg.Fulfilment.QueueSize,
	)
	fulfilment.Start()

	authService := service.NewAuthService(application.Logger, userRepo, time.Duration(cfg.JWT.TokenTTL)*time.Minute)
	addressService := service.NewAddressService(application.Logger, addressRepo)
	cartService := service.NewCartService(application.Logger, cartRepo, productRepo)
	orderService := service.NewOrderService(
		application.Logger, application.DB,
		userRepo, addressRepo, productRepo, cartRepo, orderRepo,
		fulfilment, cfg.Order.StockRetries, cfg.Order.RetryBackoff,
	)
	statsService := service.NewStatsService(application.Logger, statsRepo)

	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(application.Logger, authService))
	// эндпоинт для подтверждения оплаты платёжным шлюзом
	router.Post("/api/payment/callback", handlers.PaymentCallbackHandler(application.Logger, orderService))

	router.Group(func(r chi.Router) {
		jwtMW := jwtmiddleware.NewJWTMiddleware()
		r.Use(jwtMW)
		// адресная книга
		r.Post("/api/address", handlers.CreateAddressHandler(application.Logger, addressService))
		r.Get("/api/address", handlers.AddressesHandler(application.Logger, addressService))
		// корзина
		r.Post("/api/cart", handlers.AddToCartHandler(application.Logger, cartService))
		r.Get("/api/cart", handlers.CartHandler(application.Logger, cartService))
		r.Delete("/api/cart/{productID}", handlers.RemoveFromCartHandler(application.Logger, cartService))
		// оформление заказа и история
		r.Post("/api/order", handlers.PlaceOrderHandler(application.Logger, orderService))
		r.Get("/api/order", handlers.OrdersHandler(application.Logger, orderService))
		// отчётная статистика
		r.Get("/api/stats", handlers.StatsHandler(application.Logger, statsService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}

	// дожидаемся уже принятых фоновых задач
	fulfilment.Stop()
	log.Info("server gracefully stopped")
}
