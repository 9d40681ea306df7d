package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wellbore/internal/core"
	"wellbore/internal/narrative"
)

type reportOptions struct {
	controls controlFlags
	format   string
	trace    string
	width    int
	style    string
}

func newReportCmd(a *app) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the dashboard once and print the data, averages and interpretation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runReport(cmd, opts)
		},
	}
	opts.controls.register(cmd)
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "write pipeline spans as JSON lines to this file")
	cmd.Flags().IntVar(&opts.width, "width", 80, "word wrap width for text output")
	cmd.Flags().StringVar(&opts.style, "style", "auto", "glamour style for the interpretation: auto, dark, light, notty")
	return cmd
}

func (a *app) runReport(cmd *cobra.Command, opts *reportOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unsupported report format %q", opts.format)
	}
	req, err := opts.controls.request()
	if err != nil {
		return err
	}

	pipelineOpts := []core.PipelineOption{core.WithSeed(a.cfg.Dataset.Seed), core.WithLogger(a.logger)}
	if opts.trace != "" {
		f, err := os.Create(opts.trace)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		pipelineOpts = append(pipelineOpts, core.WithTracer(core.NewJSONTracer(f)))
	}
	res, err := core.NewPipeline(pipelineOpts...).Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return writeTextReport(a.stdout, res, opts.width, opts.style)
}

func writeTextReport(w io.Writer, res core.Result, width int, style string) error {
	fmt.Fprintf(w, "Dataset (%s, %d rows)\n\n", res.Source, res.Table.Len())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(res.Table.Names(), "\t")+"\t")
	cols := res.Table.Columns()
	for i := 0; i < res.Table.Len(); i++ {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = c.Cell(i)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAverage fracture gradient (ppg)\n\n")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, avg := range res.Averages {
		fmt.Fprintf(tw, "%s\t×%.2f\t%.2f\n", avg.Concentration, avg.Factor, avg.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	out, err := narrative.Terminal("## Interpretation\n\n"+res.Narrative, width, style)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n"+out)
	return err
}
