package service

import (
	"context"
	"errors"

	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Source     feedomain.ScheduleSource
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	source     feedomain.ScheduleSource
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) feedomain.Service {
	return &Service{
		log:        p.Log.Named("fee.service"),
		source:     p.Source,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Quote(ctx context.Context, req feedomain.QuoteRequest) (feedomain.Quote, error) {
	schedule := s.source.Schedule()
	quote, err := Calculate(schedule, req.ServiceCode, req.Inputs)

	outcome := quoteOutcome(err)
	s.obsMetrics.RecordFeeQuote(ctx, req.ServiceCode, outcome)
	if err != nil {
		if errors.Is(err, feedomain.ErrConfiguration) {
			s.log.Error("fee schedule has no entry for service",
				zap.String("service_code", req.ServiceCode),
				zap.String("schedule_version", schedule.Version),
			)
		}
		return feedomain.Quote{}, err
	}

	s.log.Debug("fee quoted",
		zap.String("service_code", quote.ServiceCode),
		zap.String("schedule_version", quote.ScheduleVersion),
		zap.String("tier", string(quote.Tier)),
		zap.Int64("total", quote.Total),
	)
	return quote, nil
}

func (s *Service) Catalog(ctx context.Context) feedomain.Catalog {
	schedule := s.source.Schedule()
	entries := make([]feedomain.CatalogEntry, 0, len(schedule.Services))
	for _, svc := range schedule.Services {
		entries = append(entries, feedomain.CatalogEntry{
			Code:         svc.Code,
			Name:         svc.Name,
			Kind:         svc.Kind,
			BasePrice:    svc.BasePrice,
			DisplayPrice: feedomain.FormatNaira(svc.BasePrice),
			Variable:     svc.Variable,
			DateGap:      svc.DateGap != nil,
		})
	}
	return feedomain.Catalog{
		Version:  schedule.Version,
		Currency: feedomain.CurrencyNGN,
		Services: entries,
	}
}

func quoteOutcome(err error) string {
	switch {
	case err == nil:
		return "priced"
	case errors.Is(err, feedomain.ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, feedomain.ErrConfiguration):
		return "configuration_error"
	default:
		return "invalid_input"
	}
}
