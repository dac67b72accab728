package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
)

var ErrEmptyReceipt = errors.New("empty_receipt")

// Provider renders printable documents for service requests.
type Provider interface {
	GenerateReceipt(ctx context.Context, data Receipt) (io.Reader, error)
}

type Receipt struct {
	Title         string
	RequestID     string
	ServiceCode   string
	ServiceName   string
	OwnerID       string
	Status        string
	StatusMessage string
	IssuedAt      string
	CreatedAt     string
	ScheduleLabel string

	Items []Item

	Total        string
	Refunded     bool
	RefundAmount string
	Deduction    string
}

type Item struct {
	Description string
	Amount      string
}

// FromServiceRequest builds receipt rows from the fee breakdown captured at
// submission time.
func FromServiceRequest(req servicerequestdomain.ServiceRequest, serviceName string, issuedAt time.Time) Receipt {
	out := Receipt{
		Title:         "Service receipt",
		RequestID:     req.ID.String(),
		ServiceCode:   req.ServiceCode,
		ServiceName:   serviceName,
		OwnerID:       req.OwnerID,
		Status:        string(req.Status),
		IssuedAt:      issuedAt.UTC().Format("02 Jan 2006 15:04 MST"),
		CreatedAt:     req.CreatedAt.UTC().Format("02 Jan 2006 15:04 MST"),
		ScheduleLabel: req.FeeScheduleVersion,
		Total:         feedomain.FormatNaira(req.ComputedFee),
		Refunded:      req.Refunded,
	}
	if out.ServiceName == "" {
		out.ServiceName = req.ServiceCode
	}
	if req.StatusMessage != nil {
		out.StatusMessage = *req.StatusMessage
	}

	breakdown := req.FeeBreakdown
	if base, ok := amountOf(breakdown["base_price"]); ok {
		out.Items = append(out.Items, Item{Description: out.ServiceName, Amount: feedomain.FormatNaira(base)})
	}
	if surcharge, ok := amountOf(breakdown["surcharge"]); ok && surcharge > 0 {
		label := "Surcharge"
		if tier, ok := breakdown["tier"].(string); ok && tier != "" {
			label = fmt.Sprintf("Date gap surcharge (%s)", tier)
		}
		if bucket, ok := breakdown["institution_bucket"].(string); ok && bucket != "" {
			label = fmt.Sprintf("Institution surcharge (%s)", bucket)
		}
		out.Items = append(out.Items, Item{Description: label, Amount: feedomain.FormatNaira(surcharge)})
	}
	if variable, ok := amountOf(breakdown["variable_amount"]); ok && variable > 0 {
		out.Items = append(out.Items, Item{Description: "Face value", Amount: feedomain.FormatNaira(variable)})
	}
	if len(out.Items) == 0 {
		out.Items = append(out.Items, Item{Description: out.ServiceName, Amount: out.Total})
	}

	if req.Refunded {
		out.RefundAmount = feedomain.FormatNaira(req.RefundAmount)
		out.Deduction = feedomain.FormatNaira(req.RefundDeduction)
	}
	return out
}

// JSON columns decode numbers as float64 while freshly built maps hold int64.
func amountOf(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data Receipt) (io.Reader, error) {
	if data.RequestID == "" {
		return nil, ErrEmptyReceipt
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, data.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Request: "+data.RequestID, props.Text{Top: 0}),
			text.New("Service: "+data.ServiceCode, props.Text{Top: 4}),
			text.New("Agent: "+data.OwnerID, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Submitted: "+data.CreatedAt, props.Text{Top: 0, Align: align.Right}),
			text.New("Issued: "+data.IssuedAt, props.Text{Top: 4, Align: align.Right}),
			text.New("Fee schedule: "+data.ScheduleLabel, props.Text{Top: 8, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(9, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range data.Items {
		m.AddRow(8,
			text.NewCol(9, item.Description, props.Text{Size: 9}),
			text.NewCol(3, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total charged", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(3, data.Total, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	if data.Refunded {
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, "Refunded", props.Text{Size: 9}),
			text.NewCol(3, data.RefundAmount, props.Text{Size: 9, Align: align.Right}),
		)
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, "Deduction", props.Text{Size: 9}),
			text.NewCol(3, data.Deduction, props.Text{Size: 9, Align: align.Right}),
		)
	}
	if data.StatusMessage != "" {
		m.AddRow(15,
			text.NewCol(12, "Note: "+data.StatusMessage, props.Text{Size: 9, Top: 5}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
