package application

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/phone"
)

// Service covers intake, staging and the operator queries on queue items.
type Service struct {
	repo        domain.ItemRepository
	extractor   domain.DocumentExtractor
	reportLimit int
}

func NewService(repo domain.ItemRepository, extractor domain.DocumentExtractor, reportLimit int) *Service {
	if reportLimit <= 0 {
		reportLimit = 500
	}
	return &Service{repo: repo, extractor: extractor, reportLimit: reportLimit}
}

// EnqueueManual creates an item from operator input. It is pending when a
// mobile was given and staged otherwise.
func (s *Service) EnqueueManual(ctx context.Context, tenantID string, req domain.ManualItemRequest, doc *domain.Upload) (*domain.Item, error) {
	item := &domain.Item{
		TenantID: tenantID,
		Name:     strings.TrimSpace(req.Name),
		Mobile:   phone.Normalize(req.Mobile),
		Message:  req.Message,
		Status:   domain.StatusStaged,
	}
	if item.Mobile != "" {
		item.Status = domain.StatusPending
	}
	if doc != nil {
		item.DocumentPath = doc.Path
		item.DocumentName = doc.FileName
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	intakeTotal.WithLabelValues("manual", string(item.Status)).Inc()
	logrus.Infof("[DISPATCH] %s: manual item %d created as %s", tenantID, item.ID, item.Status)
	return item, nil
}

// EnqueueDocument extracts recipient data from an uploaded document. The item
// is pending only when both name and mobile were found.
func (s *Service) EnqueueDocument(ctx context.Context, tenantID string, doc domain.Upload) (*domain.Item, error) {
	ext, err := s.extractor.Extract(ctx, doc.Path)
	if err != nil {
		return nil, err
	}

	item := &domain.Item{
		TenantID:     tenantID,
		DocumentPath: doc.Path,
		DocumentName: doc.FileName,
		Status:       domain.StatusStaged,
	}
	if ext.Name != nil {
		item.Name = *ext.Name
	}
	if ext.Mobile != nil {
		item.Mobile = phone.Normalize(*ext.Mobile)
	}
	if ext.Complete() {
		item.Status = domain.StatusPending
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	intakeTotal.WithLabelValues("document", string(item.Status)).Inc()
	logrus.Infof("[DISPATCH] %s: document %s queued as item %d (%s)", tenantID, doc.FileName, item.ID, item.Status)
	return item, nil
}

// Preview runs extraction without creating an item.
func (s *Service) Preview(ctx context.Context, path string) (domain.Extraction, bool, error) {
	ext, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return domain.Extraction{}, false, err
	}
	return ext, !ext.Complete(), nil
}

// ApproveStaged moves every staged item of the tenant to pending in one update.
func (s *Service) ApproveStaged(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.repo.ApproveStaged(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	logrus.Infof("[DISPATCH] %s: approved %d staged item(s)", tenantID, n)
	return n, nil
}

// owned loads an item and checks that it belongs to the tenant.
func (s *Service) owned(ctx context.Context, tenantID string, id uint) (*domain.Item, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return nil, pkgError.NotFoundError("queue item not found")
		}
		return nil, err
	}
	if item.TenantID != tenantID {
		logrus.Warnf("[DISPATCH] %s: rejected access to item %d of another tenant", tenantID, id)
		return nil, pkgError.UnauthorizedError("item belongs to another tenant")
	}
	return item, nil
}

// Edit updates name and mobile of a staged, pending or failed item. Status and
// retry count are left as they are.
func (s *Service) Edit(ctx context.Context, tenantID string, req domain.EditItemRequest) (*domain.Item, error) {
	item, err := s.owned(ctx, tenantID, req.ID)
	if err != nil {
		return nil, err
	}
	if !item.Status.Editable() {
		return nil, pkgError.ValidationError("item cannot be edited while " + string(item.Status))
	}

	name := strings.TrimSpace(req.Name)
	mobile := phone.Normalize(req.Mobile)
	if err := s.repo.UpdateRecipient(ctx, tenantID, item.ID, name, mobile); err != nil {
		if errors.Is(err, domain.ErrItemNotEditable) {
			return nil, pkgError.ValidationError("item cannot be edited while it is being sent")
		}
		return nil, err
	}
	item.Name, item.Mobile = name, mobile
	return item, nil
}

// Delete removes an item and its stored document.
func (s *Service) Delete(ctx context.Context, tenantID string, id uint) error {
	item, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if item.Status == domain.StatusProcessing {
		return pkgError.ValidationError("item is being sent")
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	if item.DocumentPath != "" {
		if err := os.Remove(item.DocumentPath); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warnf("[DISPATCH] %s: failed to remove document of item %d", tenantID, id)
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]domain.Item, error) {
	return s.repo.List(ctx, tenantID)
}

// Reports returns the delivered and permanently failed items.
func (s *Service) Reports(ctx context.Context, tenantID string) ([]domain.Item, error) {
	return s.repo.History(ctx, tenantID, s.reportLimit)
}
