package validations

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/phone"
)

const (
	maxNameLength    = 100
	maxMessageLength = 4096
)

// mobileRule accepts an empty value; Required decides presence.
var mobileRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	n := len(phone.Normalize(s))
	if n < 11 || n > 15 {
		return errors.New("must be a 10 digit number or an international number")
	}
	return nil
})

func ValidateManualItem(ctx context.Context, request domain.ManualItemRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.Length(0, maxNameLength)),
		validation.Field(&request.Mobile, mobileRule),
		validation.Field(&request.Message, validation.Length(0, maxMessageLength)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateEditItem(ctx context.Context, request domain.EditItemRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ID, validation.Required),
		validation.Field(&request.Name, validation.Length(0, maxNameLength)),
		validation.Field(&request.Mobile, mobileRule),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateStartQueue(ctx context.Context, request domain.StartQueueRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.MessageTemplate, validation.Length(0, maxMessageLength)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateDirectSend(ctx context.Context, request domain.DirectSendRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Mobile, validation.Required, mobileRule),
		validation.Field(&request.Message,
			validation.When(!request.HasDocument, validation.Required),
			validation.Length(0, maxMessageLength),
		),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
