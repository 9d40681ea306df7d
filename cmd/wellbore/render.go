package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wellbore/internal/chart"
	"wellbore/internal/core"
	"wellbore/pkg/drillapi"
)

type renderOptions struct {
	controls controlFlags
	chart    string
	format   string
	out      string
}

func newRenderCmd(a *app) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Write the line or bar chart to a PNG or SVG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runRender(cmd, opts)
		},
	}
	opts.controls.register(cmd)
	cmd.Flags().StringVar(&opts.chart, "chart", "line", "chart to render: line or bar")
	cmd.Flags().StringVar(&opts.format, "format", "png", "image format: png or svg")
	cmd.Flags().StringVar(&opts.out, "out", "", "output path (default <chart>.<format>)")
	return cmd
}

func (a *app) runRender(cmd *cobra.Command, opts *renderOptions) error {
	kind, ok := chart.ParseKind(opts.chart)
	if !ok {
		return fmt.Errorf("unknown chart %q", opts.chart)
	}
	format, ok := drillapi.ParseFormat(opts.format)
	if !ok || (format != drillapi.FormatPNG && format != drillapi.FormatSVG) {
		return fmt.Errorf("unsupported chart format %q", opts.format)
	}
	req, err := opts.controls.request()
	if err != nil {
		return err
	}
	out := opts.out
	if out == "" {
		out = string(kind) + "." + string(format)
	}

	p := core.NewPipeline(core.WithSeed(a.cfg.Dataset.Seed), core.WithLogger(a.logger))
	res, err := p.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := p.RenderChart(cmd.Context(), res, kind, format, f); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.logger.Info("chart written", "path", out, "chart", string(kind), "format", string(format))
	return nil
}
