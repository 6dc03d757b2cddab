package rest

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	dispatchApp "github.com/menofreact/whatsapp-sending-engine/dispatch/application"
	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/msgworker"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
	"github.com/menofreact/whatsapp-sending-engine/ui/rest/middleware"
	"github.com/menofreact/whatsapp-sending-engine/validations"
)

const directSendTimeout = 2 * time.Minute

type Queue struct {
	Service    *dispatchApp.Service
	Dispatcher *dispatchApp.Dispatcher
	Sessions   SessionManager
	// Pool runs direct sends; nil sends inline.
	Pool        *msgworker.Pool
	UploadsRoot string
	MaxFileSize int64
}

func InitRestQueue(app fiber.Router, handler Queue) Queue {
	app.Get("/queue", handler.List)
	app.Get("/queue/state", handler.State)
	app.Post("/queue/manual", handler.Manual)
	app.Post("/queue/approve-staged", handler.ApproveStaged)
	app.Post("/queue/update", handler.Update)
	app.Post("/queue/start", handler.Start)
	app.Post("/queue/pause", handler.Pause)
	app.Delete("/queue/:id", handler.Delete)
	app.Post("/upload", handler.Upload)
	app.Post("/pdf/preview", handler.Preview)
	app.Get("/reports", handler.Reports)
	app.Post("/send/direct", handler.DirectSend)
	return handler
}

// save stores an uploaded file under the tenant's upload folder
func (handler *Queue) save(c *fiber.Ctx, tenantID string, file *multipart.FileHeader) (domain.Upload, error) {
	if handler.MaxFileSize > 0 && file.Size > handler.MaxFileSize {
		return domain.Upload{}, pkgError.ValidationError("file " + file.Filename + " exceeds " + humanize.Bytes(uint64(handler.MaxFileSize)))
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return domain.Upload{}, pkgError.ValidationError("only PDF documents are accepted: " + file.Filename)
	}

	dir, err := utils.GetTenantUploadPath(handler.UploadsRoot, tenantID)
	if err != nil {
		return domain.Upload{}, err
	}
	path := filepath.Join(dir, utils.UniqueUploadName(file.Filename))
	if err := c.SaveFile(file, path); err != nil {
		return domain.Upload{}, pkgError.InternalServerError("failed to store upload: " + err.Error())
	}
	logrus.Debugf("[REST] %s: stored %s (%s)", tenantID, file.Filename, humanize.Bytes(uint64(file.Size)))
	return domain.Upload{Path: path, FileName: file.Filename}, nil
}

// optionalFile returns the named multipart file or nil when it was not sent
func optionalFile(c *fiber.Ctx, field string) *multipart.FileHeader {
	file, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return file
}

func (handler *Queue) List(c *fiber.Ctx) error {
	items, err := handler.Service.List(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Queue items",
		Results: items,
	})
}

func (handler *Queue) State(c *fiber.Ctx) error {
	state, err := handler.Dispatcher.State(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Queue state",
		Results: state,
	})
}

func (handler *Queue) Manual(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	var request domain.ManualItemRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body"))
	}
	utils.PanicIfNeeded(validations.ValidateManualItem(c.UserContext(), request))

	var upload *domain.Upload
	if file := optionalFile(c, "pdf"); file != nil {
		saved, err := handler.save(c, tenantID, file)
		utils.PanicIfNeeded(err)
		upload = &saved
	}

	item, err := handler.Service.EnqueueManual(c.UserContext(), tenantID, request, upload)
	if err != nil && upload != nil {
		removeQuietly(upload.Path)
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Item added as " + string(item.Status),
		Results: item,
	})
}

// Upload queues every file in the "pdfs" field. One bad file does not stop the batch.
func (handler *Queue) Upload(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	form, err := c.MultipartForm()
	if err != nil {
		panic(pkgError.ValidationError("multipart form with pdfs is required"))
	}
	files := form.File["pdfs"]
	if len(files) == 0 {
		panic(pkgError.ValidationError("no files uploaded"))
	}

	result := UploadResult{Errors: []UploadError{}}
	for _, file := range files {
		item, err := handler.enqueueFile(c, tenantID, file)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, UploadError{File: file.Filename, Error: err.Error()})
			logrus.WithError(err).Warnf("[REST] %s: upload of %s failed", tenantID, file.Filename)
			continue
		}
		result.Success++
		if item.Status == domain.StatusStaged {
			result.Staged++
		}
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Processed " + strconv.Itoa(len(files)) + " file(s)",
		Results: result,
	})
}

func (handler *Queue) enqueueFile(c *fiber.Ctx, tenantID string, file *multipart.FileHeader) (*domain.Item, error) {
	upload, err := handler.save(c, tenantID, file)
	if err != nil {
		return nil, err
	}
	item, err := handler.Service.EnqueueDocument(c.UserContext(), tenantID, upload)
	if err != nil {
		removeQuietly(upload.Path)
		return nil, err
	}
	return item, nil
}

// Preview extracts a document without queueing it. The temporary copy is removed.
func (handler *Queue) Preview(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	file := optionalFile(c, "pdf")
	if file == nil {
		panic(pkgError.ValidationError("pdf file is required"))
	}
	upload, err := handler.save(c, tenantID, file)
	utils.PanicIfNeeded(err)
	defer removeQuietly(upload.Path)

	ext, needsManual, err := handler.Service.Preview(c.UserContext(), upload.Path)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Document preview",
		Results: PreviewResponse{
			Name:             ext.Name,
			Mobile:           ext.Mobile,
			TextPreview:      ext.TextPreview,
			NeedsManualEntry: needsManual,
		},
	})
}

func (handler *Queue) ApproveStaged(c *fiber.Ctx) error {
	n, err := handler.Service.ApproveStaged(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Staged items approved",
		Results: map[string]int64{"approved": n},
	})
}

func (handler *Queue) Update(c *fiber.Ctx) error {
	var request domain.EditItemRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body"))
	}
	utils.PanicIfNeeded(validations.ValidateEditItem(c.UserContext(), request))

	item, err := handler.Service.Edit(c.UserContext(), middleware.TenantID(c), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Item updated",
		Results: item,
	})
}

func (handler *Queue) Delete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		panic(pkgError.ValidationError("invalid item id"))
	}
	utils.PanicIfNeeded(handler.Service.Delete(c.UserContext(), middleware.TenantID(c), uint(id)))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Item deleted",
	})
}

func (handler *Queue) Start(c *fiber.Ctx) error {
	var request domain.StartQueueRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			panic(pkgError.ValidationError("invalid request body"))
		}
	}
	utils.PanicIfNeeded(validations.ValidateStartQueue(c.UserContext(), request))

	if _, ok := handler.Dispatcher.Start(middleware.TenantID(c), request.MessageTemplate); !ok {
		panic(pkgError.ValidationError("Queue already processing"))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Queue started",
	})
}

func (handler *Queue) Pause(c *fiber.Ctx) error {
	handler.Dispatcher.Pause(middleware.TenantID(c))
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Queue paused",
	})
}

func (handler *Queue) Reports(c *fiber.Ctx) error {
	items, err := handler.Service.Reports(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Delivery history",
		Results: items,
	})
}

// DirectSend bypasses the queue; the upload is removed once sent.
func (handler *Queue) DirectSend(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	var request domain.DirectSendRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body"))
	}
	file := optionalFile(c, "pdf")
	request.HasDocument = file != nil
	utils.PanicIfNeeded(validations.ValidateDirectSend(c.UserContext(), request))

	text := domain.Render(request.Message, domain.Item{Name: request.Name, Mobile: request.Mobile})

	var doc *sessionDomain.Document
	if file != nil {
		upload, err := handler.save(c, tenantID, file)
		utils.PanicIfNeeded(err)
		defer removeQuietly(upload.Path)
		doc = &sessionDomain.Document{Path: upload.Path, FileName: upload.FileName}
	}

	send := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directSendTimeout)
		defer cancel()
		if doc != nil {
			return handler.Sessions.SendDocument(ctx, tenantID, request.Mobile, *doc, text)
		}
		return handler.Sessions.SendText(ctx, tenantID, request.Mobile, text)
	}
	utils.PanicIfNeeded(handler.runSend(tenantID, send))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
	})
}

// runSend hands the send to the worker pool and waits for it. Sends of one
// tenant are serialized on the tenant's worker.
func (handler *Queue) runSend(tenantID string, send func(ctx context.Context) error) error {
	if handler.Pool == nil {
		return send(context.Background())
	}
	done := make(chan error, 1)
	ok := handler.Pool.TryDispatch(msgworker.Job{
		Key:  tenantID,
		Name: "direct-send",
		Handler: func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("direct send aborted: %v", r)
				}
				done <- err
			}()
			return send(ctx)
		},
	})
	if !ok {
		return pkgError.InternalServerError("send queue is full, try again")
	}
	select {
	case err := <-done:
		return err
	case <-time.After(directSendTimeout + 5*time.Second):
		return pkgError.InternalServerError("direct send timed out")
	}
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warnf("[REST] Failed to remove temporary upload %s", path)
	}
}
