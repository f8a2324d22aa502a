package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

const manualReferencePrefix = "manual_"

// ManualGateway handles offline payments: the customer uploads proof against
// a token and an admin later approves or rejects it.
type ManualGateway struct {
	uploadPath string
	newToken   func() string
}

// NewManualGateway builds the manual variant. uploadPath is a format string
// with one %s for the token.
func NewManualGateway(uploadPath string) (*ManualGateway, error) {
	if !strings.Contains(uploadPath, "%s") {
		return nil, fmt.Errorf("manual upload path must contain %%s for the token")
	}
	return &ManualGateway{
		uploadPath: uploadPath,
		newToken:   func() string { return manualReferencePrefix + uuid.NewString() },
	}, nil
}

func (g *ManualGateway) Method() enums.PaymentMethod { return enums.PaymentMethodManual }

func (g *ManualGateway) Initiate(_ context.Context, _ Charge) (ClientAction, error) {
	token := g.newToken()
	return ClientAction{
		Method:            enums.PaymentMethodManual,
		ExternalReference: token,
		UploadToken:       token,
		UploadPath:        fmt.Sprintf(g.uploadPath, token),
	}, nil
}

// Refund is settled offline for manual payments; nothing is called.
func (g *ManualGateway) Refund(context.Context, RefundCharge) error {
	return nil
}

// IsManualReference reports whether ref was issued by the manual gateway.
func IsManualReference(ref string) bool {
	return strings.HasPrefix(ref, manualReferencePrefix)
}
