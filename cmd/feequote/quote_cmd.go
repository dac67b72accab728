package main

import (
	"fmt"
	"strings"

	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	feeservice "github.com/smallbiznis/agentdesk/internal/fee/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFeeService(schedule feedomain.Schedule) feedomain.Service {
	return feeservice.NewService(feeservice.Params{
		Log:    zap.NewNop(),
		Source: feedomain.StaticSource(schedule),
	})
}

type quoteOutput struct {
	Quote        feedomain.Quote `json:"quote"`
	DisplayTotal string          `json:"display_total"`
}

func newQuoteCmd(load scheduleLoader) *cobra.Command {
	var (
		serviceCode string
		oldDate     string
		newDate     string
		institution string
		amount      string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute the fee for one service",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := load()
			if err != nil {
				return fmt.Errorf("load schedule: %w", err)
			}

			inputs := map[string]string{}
			for key, value := range map[string]string{
				feedomain.InputOldDate:     oldDate,
				feedomain.InputNewDate:     newDate,
				feedomain.InputInstitution: institution,
				feedomain.InputAmount:      amount,
			} {
				if v := strings.TrimSpace(value); v != "" {
					inputs[key] = v
				}
			}

			quote, err := newFeeService(schedule).Quote(cmd.Context(), feedomain.QuoteRequest{
				ServiceCode: serviceCode,
				Inputs:      inputs,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), quoteOutput{
				Quote:        quote,
				DisplayTotal: feedomain.FormatNaira(quote.Total),
			})
		},
	}

	cmd.Flags().StringVar(&serviceCode, "service", "", "Service code, e.g. NIN_MOD_DOB (required)")
	cmd.Flags().StringVar(&oldDate, "old-date", "", "Current date on record (YYYY-MM-DD)")
	cmd.Flags().StringVar(&newDate, "new-date", "", "Requested date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&institution, "institution", "", "Institution for BVN modifications")
	cmd.Flags().StringVar(&amount, "amount", "", "Face value for vend services")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func newCatalogCmd(load scheduleLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List every service in the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := load()
			if err != nil {
				return fmt.Errorf("load schedule: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), newFeeService(schedule).Catalog(cmd.Context()))
		},
	}
}
