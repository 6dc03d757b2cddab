package cmd

import (
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	coreconfig "github.com/menofreact/whatsapp-sending-engine/core/config"
	"github.com/menofreact/whatsapp-sending-engine/pkg/debuglog"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
)

var (
	cfg       *coreconfig.Config
	debugRing *debuglog.Ring
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "whatsapp-sending-engine",
	Short: "Multi-tenant WhatsApp document and message dispatch engine",
	Long: `Runs one WhatsApp session per operator account, keeps it paired and connected,
and delivers queued documents and messages at a controlled pace.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	var err error
	cfg, err = coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()
	cobra.OnInitialize(initLogging)
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&cfg.App.Port,
		"port", "p",
		cfg.App.Port,
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&cfg.App.Debug,
		"debug", "d",
		cfg.App.Debug,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringVarP(
		&cfg.App.OS,
		"os", "",
		cfg.App.OS,
		`os name shown on the linked device --os <string> | example: --os="Chrome"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&cfg.App.BasePath,
		"base-path", "",
		cfg.App.BasePath,
		`base path for subpath deployment --base-path <string> | example: --base-path="/engine"`,
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&cfg.App.TrustedProxies,
		"trusted-proxies", "",
		cfg.App.TrustedProxies,
		`trusted proxy IP ranges --trusted-proxies <string> | example: --trusted-proxies="10.0.0.0/8"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&cfg.Database.Driver,
		"db-driver", "",
		cfg.Database.Driver,
		`database driver for the queue, accounts and device store --db-driver <sqlite|postgres>`,
	)
	rootCmd.PersistentFlags().DurationVarP(
		&cfg.Queue.MessageDelay,
		"message-delay", "",
		cfg.Queue.MessageDelay,
		`minimum gap between two sends of the same account --message-delay <duration> | example: --message-delay=10s`,
	)
	rootCmd.PersistentFlags().DurationVarP(
		&cfg.Queue.TickInterval,
		"tick-interval", "",
		cfg.Queue.TickInterval,
		`how often eligible items are picked up --tick-interval <duration> | example: --tick-interval=3s`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&cfg.Queue.MaxRetries,
		"max-retries", "",
		cfg.Queue.MaxRetries,
		`send attempts before an item is failed for good --max-retries <number>`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&cfg.Queue.Workers,
		"queue-workers", "",
		cfg.Queue.Workers,
		`number of dispatch workers --queue-workers <number> | example: --queue-workers=8`,
	)
}

func initLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.App.Debug {
		cfg.Whatsapp.LogLevel = "DEBUG"
		logrus.SetLevel(logrus.DebugLevel)
	}

	debugRing = debuglog.NewRing(cfg.Session.DebugLogBufferSize)
	logrus.AddHook(debugRing)

	if err := utils.CreateFolder(cfg.Paths.Storages, cfg.Paths.Uploads); err != nil {
		logrus.Errorln(err)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
