package laps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aarondl/opt/null"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cmdutil "github.com/rehud/rehud-delta/pkg/cmd/util"
	"github.com/rehud/rehud-delta/pkg/config"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/service/summary"
	"github.com/rehud/rehud-delta/pkg/storage"
	"github.com/rehud/rehud-delta/pkg/storage/factory"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

var (
	output      string
	limit       int
	combination model.Combination
)

func NewLapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "laps",
		Short: "inspect stored laps",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.SetupLogger()
		},
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", outputTable,
		"output format (table, yaml, json)")
	cmd.AddCommand(newListCmd(), newSummaryCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "lists the most recent laps of a combination",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s storage.LapStore) error {
				laps, err := s.ListLaps(ctx, combination, limit)
				if err != nil {
					return err
				}
				return renderLaps(os.Stdout, output, laps)
			})
		},
	}
	cmd.Flags().IntVar(&combination.LayoutID, "layout", 0, "layout id")
	cmd.Flags().IntVar(&combination.CarID, "car", 0, "car (model) id")
	cmd.Flags().IntVar(&combination.ClassPerformanceIndex, "class", 0,
		"class performance index")
	cmd.Flags().IntVar(&limit, "limit", storage.MaxEntries, "max number of laps")
	//nolint:errcheck // flags exist
	cmd.MarkFlagRequired("layout")
	//nolint:errcheck // flags exist
	cmd.MarkFlagRequired("car")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "shows lap statistics per combination",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s storage.LapStore) error {
				items, err := summary.NewService(s).Compute(ctx)
				if err != nil {
					return err
				}
				return renderSummaries(os.Stdout, output, items)
			})
		},
	}
}

//nolint:whitespace // editor/linter issue
func withStore(
	ctx context.Context,
	fn func(ctx context.Context, s storage.LapStore) error,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := factory.Open(ctx, config.DB, factory.WithMigration())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func renderLaps(w io.Writer, format string, laps []*model.LapRecord) error {
	switch format {
	case outputTable:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Recorded", "Driver", "Lap time", "Valid", "Telemetry"})
		for _, l := range laps {
			t.AppendRow(table.Row{
				l.RecordedAt.Local().Format("2006-01-02 15:04:05"),
				l.DriverKey,
				FormatLapTime(null.From(l.LapTime)),
				l.Valid,
				l.HasTelemetry(),
			})
		}
		t.Render()
		return nil
	default:
		return encode(w, format, laps)
	}
}

func renderSummaries(w io.Writer, format string, items []*summary.Summary) error {
	switch format {
	case outputTable:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{
			"Layout", "Car", "Class", "Laps", "Valid",
			"Best", "Reference", "Mean", "StdDev", "Median",
		})
		for _, s := range items {
			t.AppendRow(table.Row{
				s.Combination.LayoutID,
				s.Combination.CarID,
				s.Combination.ClassPerformanceIndex,
				s.Laps,
				s.ValidLaps,
				FormatLapTime(s.BestLapTime),
				FormatLapTime(s.ReferenceLapTime),
				FormatLapTime(s.Mean),
				formatSeconds(s.StdDev),
				FormatLapTime(s.Median),
			})
		}
		t.Render()
		return nil
	default:
		return encode(w, format, items)
	}
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// FormatLapTime formats seconds as m:ss.fff, "-" for null.
func FormatLapTime(v null.Val[float64]) string {
	t, ok := v.Get()
	if !ok {
		return "-"
	}
	ms := int64(t*1000 + 0.5)
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

func formatSeconds(v null.Val[float64]) string {
	t, ok := v.Get()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.3fs", t)
}
