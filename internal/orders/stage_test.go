package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderPending, enums.OrderAccepted}:     true,
		{enums.OrderPending, enums.OrderRejected}:     true,
		{enums.OrderPending, enums.OrderCancelled}:    true,
		{enums.OrderAccepted, enums.OrderInProgress}:  true,
		{enums.OrderAccepted, enums.OrderCancelled}:   true,
		{enums.OrderInProgress, enums.OrderCompleted}: true,
	}
	statuses := []enums.OrderStatus{
		enums.OrderPending, enums.OrderAccepted, enums.OrderInProgress,
		enums.OrderCompleted, enums.OrderRejected, enums.OrderCancelled,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]enums.OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStageOf(t *testing.T) {
	stage, err := StageOf(&models.Order{Status: enums.OrderAccepted, PaymentStatus: enums.PaymentPaid})
	require.NoError(t, err)
	accepted, ok := stage.(Accepted)
	require.True(t, ok)
	assert.Equal(t, enums.PaymentPaid, accepted.Payment)

	stage, err = StageOf(&models.Order{Status: enums.OrderCompleted, PaymentStatus: enums.PaymentPartiallyRefunded})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderCompleted, stage.Status())

	_, err = StageOf(&models.Order{Status: enums.OrderCompleted, PaymentStatus: enums.PaymentPending})
	assert.Error(t, err)
	_, err = StageOf(&models.Order{Status: "shipped", PaymentStatus: enums.PaymentPending})
	assert.Error(t, err)
	_, err = StageOf(nil)
	assert.Error(t, err)
}
