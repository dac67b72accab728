package main

import (
	"encoding/json"
	"io"

	"github.com/smallbiznis/agentdesk/internal/config"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var schedulePath string

	cmd := &cobra.Command{
		Use:           "feequote",
		Short:         "Price agent services offline against a fee schedule file",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&schedulePath, "schedule", "", "Fee schedule file (defaults to the built-in schedule)")

	load := func() (feedomain.Schedule, error) {
		return config.LoadFeeSchedule(schedulePath)
	}
	cmd.AddCommand(newQuoteCmd(load))
	cmd.AddCommand(newCatalogCmd(load))
	return cmd
}

type scheduleLoader func() (feedomain.Schedule, error)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
