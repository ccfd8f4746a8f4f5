package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "time/tzdata"

	"github.com/emspay/ipn-service/config"
	"github.com/emspay/ipn-service/internal/controller"
	"github.com/emspay/ipn-service/internal/debuglog"
	"github.com/emspay/ipn-service/internal/infrastructure/currency"
	"github.com/emspay/ipn-service/internal/infrastructure/database/postgres"
	"github.com/emspay/ipn-service/internal/infrastructure/message-queue/kafka"
	"github.com/emspay/ipn-service/internal/infrastructure/tracing"
	"github.com/emspay/ipn-service/internal/mailer"
	"github.com/emspay/ipn-service/internal/method"
	localmiddleware "github.com/emspay/ipn-service/internal/middleware"
	"github.com/emspay/ipn-service/internal/repository"
	"github.com/emspay/ipn-service/internal/service"
	"github.com/emspay/ipn-service/pkg/response"
	"github.com/go-co-op/gocron/v2"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = logger

	config := config.CreateNewConfig()

	kafkaProducer := kafka.CreateKafkaProducer(config)
	kafkaReader := kafka.CreateKafkaReader(config)

	db, err := postgres.GetDBInstance(config.PostgreSQLConfig.DBUsername, config.PostgreSQLConfig.DBPassword, config.PostgreSQLConfig.DBHost, config.PostgreSQLConfig.DBPort, config.PostgreSQLConfig.DBName)
	if err != nil {
		panic(err)
	}

	traceProvider, err := tracing.InitTracing(config.TracingConfig.CollectorHost)
	if err != nil {
		fmt.Println(err)
	}

	defer func() {
		if err := traceProvider.Shutdown(context.Background()); err != nil {
			fmt.Println(err)
		}
	}()

	tracer := traceProvider.Tracer("ipn-service")

	e := echo.New()
	g := e.Group("/api/v1")

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), fmt.Sprintf("[%s] %s", c.Request().Method, c.Path()))
			defer span.End()

			req := c.Request()
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	})

	// Used empty string so that metrics are not prefixed with the service name making it easier to aggregate across services
	e.Use(echoprometheus.NewMiddleware(""))
	go func() {
		metrics := echo.New()
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(fmt.Sprintf(":%s", config.MetricsPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}()

	e.Use(localmiddleware.Logger)

	g.GET("/ping", func(c echo.Context) error {
		return response.WriteSuccessResponse(c, "Hello, World!", nil)
	})

	var currencyLookup currency.Lookup = currency.NewStaticLookup()
	if config.RatesServiceHost != "" {
		currencyLookup = currency.NewHTTPLookup(config.RatesServiceHost)
	}

	mailQueue := mailer.CreateKafkaQueue(kafkaProducer)
	mailWorker := mailer.CreateWorker(kafkaReader, config.SMTPConfig)
	go mailWorker.Run(context.Background())

	orderRepo := repository.CreateOrderRepository(db)
	methods := method.NewResolver(config)
	notificationSvc := service.CreateNotificationService(orderRepo, methods, currencyLookup, mailQueue, config, debuglog.NewFileSink())
	controller.CreateNotificationController(g, notificationSvc)

	s, err := gocron.NewScheduler()
	if err != nil {
		panic(err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(
			time.Minute,
		),
		gocron.NewTask(
			notificationSvc.CancelExpiredPendingOrders,
		),
	)
	if err != nil {
		panic(err)
	}

	s.Start()

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%s", config.ServicePort)))
}
