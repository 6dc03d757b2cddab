package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
)

// --- Persistence Model ---

type itemModel struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	TenantID     string    `gorm:"index:idx_queue_tenant_status,priority:1;not null"`
	Name         string
	Mobile       string
	DocumentPath string    `gorm:"column:pdf_path"`
	DocumentName string    `gorm:"column:original_filename"`
	Message      string    `gorm:"type:text"`
	Status       string    `gorm:"index:idx_queue_tenant_status,priority:2;not null;default:'pending'"`
	Retries      int       `gorm:"not null;default:0"`
	Error        string    `gorm:"type:text"`
	Logs         string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index;not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (itemModel) TableName() string {
	return "queue"
}

func toItemModel(i *domain.Item) itemModel {
	return itemModel{
		ID:           i.ID,
		TenantID:     i.TenantID,
		Name:         i.Name,
		Mobile:       i.Mobile,
		DocumentPath: i.DocumentPath,
		DocumentName: i.DocumentName,
		Message:      i.Message,
		Status:       string(i.Status),
		Retries:      i.Retries,
		Error:        i.Error,
		Logs:         i.Logs,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

func fromItemModel(m itemModel) domain.Item {
	return domain.Item{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Name:         m.Name,
		Mobile:       m.Mobile,
		DocumentPath: m.DocumentPath,
		DocumentName: m.DocumentName,
		Message:      m.Message,
		Status:       domain.Status(m.Status),
		Retries:      m.Retries,
		Error:        m.Error,
		Logs:         m.Logs,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromItemModels(models []itemModel) []domain.Item {
	items := make([]domain.Item, 0, len(models))
	for _, m := range models {
		items = append(items, fromItemModel(m))
	}
	return items
}

// --- Repository Implementation ---

type ItemGormRepository struct {
	db *gorm.DB
}

var _ domain.ItemRepository = (*ItemGormRepository)(nil)

func NewItemGormRepository(db *gorm.DB) *ItemGormRepository {
	return &ItemGormRepository{db: db}
}

func (r *ItemGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&itemModel{})
}

func logLine(msg string) string {
	return fmt.Sprintf("\n[%s] %s", time.Now().UTC().Format(time.RFC3339), msg)
}

func appendLog(msg string) interface{} {
	return gorm.Expr("COALESCE(logs, '') || ?", logLine(msg))
}

func (r *ItemGormRepository) scoped(ctx context.Context, tenantID string, id uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&itemModel{}).Where("id = ? AND tenant_id = ?", id, tenantID)
}

func (r *ItemGormRepository) Create(ctx context.Context, item *domain.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = domain.StatusPending
	}
	item.Logs = logLine("Created as " + string(item.Status))

	model := toItemModel(item)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	item.ID = model.ID
	return nil
}

func (r *ItemGormRepository) Get(ctx context.Context, tenantID string, id uint) (*domain.Item, error) {
	var m itemModel
	if err := r.db.WithContext(ctx).First(&m, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	item := fromItemModel(m)
	return &item, nil
}

func (r *ItemGormRepository) FindByID(ctx context.Context, id uint) (*domain.Item, error) {
	var m itemModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	item := fromItemModel(m)
	return &item, nil
}

func (r *ItemGormRepository) List(ctx context.Context, tenantID string) ([]domain.Item, error) {
	var models []itemModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromItemModels(models), nil
}

func (r *ItemGormRepository) History(ctx context.Context, tenantID string, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = 500
	}
	var models []itemModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, []string{string(domain.StatusCompleted), string(domain.StatusFailed)}).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromItemModels(models), nil
}

func (r *ItemGormRepository) CountByStatus(ctx context.Context, tenantID string) (map[domain.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&itemModel{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *ItemGormRepository) eligibleScope(db *gorm.DB, maxRetries int) *gorm.DB {
	return db.Where("(status = ? OR (status = ? AND retries < ?))",
		string(domain.StatusPending), string(domain.StatusFailed), maxRetries)
}

func (r *ItemGormRepository) Eligible(ctx context.Context, tenantID string, maxRetries int) ([]domain.Item, error) {
	var models []itemModel
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	err := r.eligibleScope(q, maxRetries).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromItemModels(models), nil
}

func (r *ItemGormRepository) TenantsWithEligible(ctx context.Context, maxRetries int) ([]string, error) {
	var tenants []string
	q := r.db.WithContext(ctx).Model(&itemModel{}).Distinct("tenant_id")
	if err := r.eligibleScope(q, maxRetries).Order("tenant_id").Pluck("tenant_id", &tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *ItemGormRepository) Claim(ctx context.Context, tenantID string, id uint) (bool, error) {
	res := r.scoped(ctx, tenantID, id).
		Where("status IN ?", []string{string(domain.StatusPending), string(domain.StatusFailed)}).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusProcessing),
			"logs":       appendLog("Started processing"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ItemGormRepository) Complete(ctx context.Context, tenantID string, id uint) error {
	return r.mustUpdate(r.scoped(ctx, tenantID, id).Updates(map[string]interface{}{
		"status":     string(domain.StatusCompleted),
		"error":      "",
		"logs":       appendLog("Sent successfully"),
		"updated_at": time.Now().UTC(),
	}))
}

func (r *ItemGormRepository) RecordFailure(ctx context.Context, tenantID string, id uint, retries int, status domain.Status, errText string) error {
	return r.mustUpdate(r.scoped(ctx, tenantID, id).Updates(map[string]interface{}{
		"status":     string(status),
		"retries":    retries,
		"error":      errText,
		"logs":       appendLog("Failed: " + errText),
		"updated_at": time.Now().UTC(),
	}))
}

func (r *ItemGormRepository) ReturnToStaged(ctx context.Context, tenantID string, id uint, errText string) error {
	q := r.scoped(ctx, tenantID, id).Where("status IN ?", []string{string(domain.StatusPending), string(domain.StatusFailed)})
	return r.mustUpdate(q.Updates(map[string]interface{}{
		"status":     string(domain.StatusStaged),
		"error":      errText,
		"logs":       appendLog("Returned to staging: " + errText),
		"updated_at": time.Now().UTC(),
	}))
}

func (r *ItemGormRepository) ApproveStaged(ctx context.Context, tenantID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&itemModel{}).
		Where("tenant_id = ? AND status = ?", tenantID, string(domain.StatusStaged)).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusPending),
			"logs":       appendLog("Approved"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *ItemGormRepository) UpdateRecipient(ctx context.Context, tenantID string, id uint, name, mobile string) error {
	editable := make([]string, 0, len(domain.EditableStatuses))
	for _, st := range domain.EditableStatuses {
		editable = append(editable, string(st))
	}
	err := r.mustUpdate(r.scoped(ctx, tenantID, id).Where("status IN ?", editable).Updates(map[string]interface{}{
		"name":       name,
		"mobile":     mobile,
		"logs":       appendLog("Recipient edited"),
		"updated_at": time.Now().UTC(),
	}))
	if !errors.Is(err, domain.ErrItemNotFound) {
		return err
	}
	// tell a missing row apart from one a pass claimed in the meantime
	if _, getErr := r.Get(ctx, tenantID, id); getErr == nil {
		return domain.ErrItemNotEditable
	}
	return err
}

func (r *ItemGormRepository) Delete(ctx context.Context, tenantID string, id uint) error {
	return r.mustUpdate(r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&itemModel{}))
}

func (r *ItemGormRepository) ResetProcessing(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&itemModel{}).
		Where("status = ?", string(domain.StatusProcessing)).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusPending),
			"logs":       appendLog("Reset after restart"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *ItemGormRepository) mustUpdate(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}
