package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
	"github.com/menofreact/whatsapp-sending-engine/ui/rest"
	"github.com/menofreact/whatsapp-sending-engine/ui/rest/middleware"
	"github.com/menofreact/whatsapp-sending-engine/ui/websocket"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the engine with its HTTP and websocket API",
	Long:  `Starts the session supervisor, the dispatch scheduler and the operator API.`,
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	if cfg.App.Environment == "production" && strings.HasPrefix(cfg.Security.SecretKey, "changeme") {
		logrus.Fatalln("APP_SECRET_KEY still has the default value; set a real secret and restart.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := initEngine(ctx)
	if err != nil {
		logrus.Fatalf("[APP] Failed to initialize: %v", err)
	}

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		BodyLimit:               int(cfg.Whatsapp.MaxFileSize) * 10,
		Network:                 "tcp",
		AppName:                 "WhatsApp Sending Engine",
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)
	app.Use(requestid.New())

	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if !strings.Contains(origins, cfg.App.BaseUrl) {
		origins += ", " + cfg.App.BaseUrl
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return websocketUpgrade(c)
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	app.Get(cfg.App.BasePath+"/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	apiGroup := app.Group(cfg.App.BasePath + "/api")
	protected := rest.RegisterRoutes(apiGroup, rest.Routes{
		Accounts: e.accounts,
		Sessions: e.supervisor,
		Queue: rest.Queue{
			Service:     e.service,
			Dispatcher:  e.dispatcher,
			Sessions:    e.supervisor,
			Pool:        e.pool,
			UploadsRoot: cfg.Paths.Uploads,
			MaxFileSize: cfg.Whatsapp.MaxFileSize,
		},
		Admin: rest.Admin{
			Accounts: e.accounts,
			Sessions: e.supervisor,
			Logs:     debugRing,
		},
		Health: rest.Health{DB: e.db, Valkey: e.valkey},
		Pool:   e.pool,
	})
	websocket.RegisterRoutes(protected, e.supervisor.Status)

	apiGroup.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(utils.ResponseData{
			Status:  fiber.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: "API endpoint not found",
		})
	})

	if e.valkey != nil {
		websocket.SetValkeyClient(e.valkey, utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages))
	}
	go websocket.RunHub(ctx)

	e.supervisor.OnStateChange(websocket.PublishSessionStatus)
	e.dispatcher.OnPassResult(websocket.PublishPassResult)
	e.bootstrap(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Errorln("Failed to start: ", err.Error())
	}

	cancel()
	e.stop()
}

func websocketUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}
