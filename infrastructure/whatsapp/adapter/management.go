package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// Config selects where device stores live and how clients identify themselves.
type Config struct {
	StoragePath string
	// Driver is "sqlite" (one file per tenant) or "postgres" (one schema per tenant).
	Driver      string
	PostgresDSN string
	LogLevel    string
	OS          string
	Platform    waCompanionReg.DeviceProps_PlatformType
	MaxFileSize int64
}

// Factory builds WhatsAppAdapters and owns the per-tenant device stores.
type Factory struct {
	cfg       Config
	propsOnce sync.Once
}

var _ domain.ProviderFactory = (*Factory)(nil)

func NewFactory(cfg Config) *Factory {
	if cfg.StoragePath == "" {
		cfg.StoragePath = "storages"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR"
	}
	return &Factory{cfg: cfg}
}

func (f *Factory) New(tenantID string, emit func(domain.Event)) (domain.Provider, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	f.propsOnce.Do(f.configureDeviceProps)
	return &WhatsAppAdapter{tenantID: tenantID, factory: f, emit: emit}, nil
}

func (f *Factory) configureDeviceProps() {
	osName := f.cfg.OS
	if osName == "" {
		osName = "Linux"
	}
	platform := f.cfg.Platform
	if platform == 0 {
		platform = waCompanionReg.DeviceProps_CHROME
	}
	store.DeviceProps.PlatformType = &platform
	store.DeviceProps.Os = &osName
}

func (f *Factory) isPostgres() bool {
	return f.cfg.Driver == "postgres"
}

// safeName keeps tenant ids usable in file and schema names.
func safeName(tenantID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(tenantID))
}

func (f *Factory) sqlitePath(tenantID string) string {
	return filepath.Join(f.cfg.StoragePath, fmt.Sprintf("whatsapp-%s.db", safeName(tenantID)))
}

func (f *Factory) schemaName(tenantID string) string {
	return "wa_" + safeName(tenantID)
}

func (f *Factory) openContainer(ctx context.Context, tenantID string) (*sqlstore.Container, error) {
	dbLog := waLog.Stdout("DB-"+shortID(tenantID), f.cfg.LogLevel, true)

	if f.isPostgres() {
		schema := f.schemaName(tenantID)
		if err := f.ensureSchema(ctx, schema); err != nil {
			return nil, err
		}
		return sqlstore.New(ctx, "postgres", f.cfg.PostgresDSN+" search_path="+schema, dbLog)
	}

	if err := os.MkdirAll(f.cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", f.sqlitePath(tenantID)), dbLog)
}

func (f *Factory) ensureSchema(ctx context.Context, schema string) error {
	db, err := sql.Open("postgres", f.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS "`+schema+`"`); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	return nil
}

// HasAuth reports whether the tenant's store holds a paired device.
func (f *Factory) HasAuth(tenantID string) bool {
	if !f.isPostgres() {
		if _, err := os.Stat(f.sqlitePath(tenantID)); err != nil {
			return false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	container, err := f.openContainer(ctx, tenantID)
	if err != nil {
		logrus.WithError(err).Warnf("[WHATSAPP] %s: cannot inspect device store", tenantID)
		return false
	}
	defer container.Close()

	device, err := container.GetFirstDevice(ctx)
	return err == nil && device != nil && device.ID != nil
}

// ClearAuth deletes the tenant's device store. The provider must be disconnected first.
func (f *Factory) ClearAuth(ctx context.Context, tenantID string) error {
	if f.isPostgres() {
		container, err := f.openContainer(ctx, tenantID)
		if err != nil {
			return err
		}
		defer container.Close()

		devices, err := container.GetAllDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		for _, d := range devices {
			if err := container.DeleteDevice(ctx, d); err != nil {
				return fmt.Errorf("failed to delete device: %w", err)
			}
		}
		logrus.Infof("[WHATSAPP] %s: removed %d stored device(s)", tenantID, len(devices))
		return nil
	}

	path := f.sqlitePath(tenantID)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	logrus.Infof("[WHATSAPP] %s: local auth removed", tenantID)
	return nil
}

// StoredTenants lists tenants that have a device store on disk. Postgres
// deployments return nil and rely on the account list instead.
func (f *Factory) StoredTenants() []string {
	if f.isPostgres() {
		return nil
	}
	matches, _ := filepath.Glob(filepath.Join(f.cfg.StoragePath, "whatsapp-*.db"))
	tenants := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "whatsapp-"), ".db")
		if name != "" {
			tenants = append(tenants, name)
		}
	}
	return tenants
}
