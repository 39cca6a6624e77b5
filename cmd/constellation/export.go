package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"constellation"
	"constellation/export"
)

func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export clients with their tag names",
		RunE:  withApp(runExport),
	}
	exportCmd.Flags().String("format", "json", "Output format (json, yaml, cbor, xlsx)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().String("status", "", "Only clients in this status")
	return exportCmd
}

func runExport(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	formatName, _ := flags.GetString("format")
	output, _ := flags.GetString("output")
	status, _ := flags.GetString("status")

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	criteria := constellation.Criteria{}
	if status != "" {
		criteria["status"] = status
	}
	rows, err := a.services.Clients.Export(ctx, criteria)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if err := export.Write(w, format, rows); err != nil {
		return err
	}
	a.logger.Info("clients exported",
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
		zap.String("output", output))
	return nil
}
