package receipt

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() servicerequestdomain.ServiceRequest {
	note := "record not found"
	return servicerequestdomain.ServiceRequest{
		ID:                 snowflake.ID(42),
		ServiceCode:        "BVN_MOD_DOB",
		OwnerID:            "agent-1",
		FeeScheduleVersion: "builtin-2024.1",
		ComputedFee:        9000,
		Status:             servicerequestdomain.StatusFailed,
		StatusMessage:      &note,
		Refunded:           true,
		RefundAmount:       8500,
		RefundDeduction:    500,
		FeeBreakdown: map[string]any{
			"base_price":         float64(2000),
			"surcharge":          float64(7000),
			"institution_bucket": "agency",
			"total":              float64(9000),
		},
		CreatedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFromServiceRequestItemizesBreakdown(t *testing.T) {
	r := FromServiceRequest(sampleRequest(), "BVN date of birth", time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC))

	require.Len(t, r.Items, 2)
	assert.Equal(t, "BVN date of birth", r.Items[0].Description)
	assert.Equal(t, "Institution surcharge (agency)", r.Items[1].Description)
	assert.Equal(t, "42", r.RequestID)
	assert.Equal(t, "record not found", r.StatusMessage)
	assert.True(t, r.Refunded)
	assert.NotEmpty(t, r.RefundAmount)
}

func TestFromServiceRequestWithoutBreakdown(t *testing.T) {
	req := sampleRequest()
	req.FeeBreakdown = nil
	req.Refunded = false

	r := FromServiceRequest(req, "", time.Now())
	require.Len(t, r.Items, 1)
	assert.Equal(t, "BVN_MOD_DOB", r.Items[0].Description)
	assert.Equal(t, r.Total, r.Items[0].Amount)
	assert.Empty(t, r.RefundAmount)
}

func TestGenerateReceiptProducesPDF(t *testing.T) {
	provider := New()
	reader, err := provider.GenerateReceipt(context.Background(), FromServiceRequest(sampleRequest(), "", time.Now()))
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestGenerateReceiptRejectsEmpty(t *testing.T) {
	_, err := New().GenerateReceipt(context.Background(), Receipt{})
	assert.ErrorIs(t, err, ErrEmptyReceipt)
}
