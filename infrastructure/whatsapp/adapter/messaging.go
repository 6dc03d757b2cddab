package adapter

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// SendText sends a plain text message.
func (wa *WhatsAppAdapter) SendText(ctx context.Context, address, text string) error {
	client := wa.currentClient()
	if client == nil {
		return fmt.Errorf("no client")
	}
	jid, err := parseJID(address)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}

	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
		},
	}
	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return err
	}
	logrus.Debugf("[WHATSAPP] %s: text %s sent to %s", wa.tenantID, resp.ID, jid.User)
	return nil
}

// SendDocument uploads the file and sends it with the caption on the same message.
func (wa *WhatsAppAdapter) SendDocument(ctx context.Context, address string, doc domain.Document, caption string) error {
	client := wa.currentClient()
	if client == nil {
		return fmt.Errorf("no client")
	}
	jid, err := parseJID(address)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if limit := wa.factory.cfg.MaxFileSize; limit > 0 && int64(len(data)) > limit {
		return fmt.Errorf("document is %s, above the %s limit", humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(limit)))
	}

	fileName := doc.FileName
	if fileName == "" {
		fileName = filepath.Base(doc.Path)
	}
	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileName))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	uploaded, err := client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileName:      proto.String(fileName),
			Title:         proto.String(fileName),
		},
	}
	if caption != "" {
		msg.DocumentMessage.Caption = proto.String(caption)
	}

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return err
	}
	logrus.Debugf("[WHATSAPP] %s: document %s (%s) sent to %s", wa.tenantID, resp.ID, humanize.Bytes(uploaded.FileLength), jid.User)
	return nil
}
