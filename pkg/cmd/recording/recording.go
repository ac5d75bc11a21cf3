package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/rehud/rehud-delta/pkg/source"
)

func NewRecordingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recording",
		Short: "inspect recordings",
	}
	cmd.AddCommand(newInfoCmd(), newQueryCmd())
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "shows the header of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return printInfo(cmd.OutOrStdout(), f)
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <file> <jsonpath>",
		Short: "evaluates a JSONPath expression for every frame",
		Example: `  rdelta recording query session.jsonl '$.drivers[?(@.place == 1)].lapDistance'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return printQuery(cmd.OutOrStdout(), f, args[1])
		},
	}
}

func printInfo(w io.Writer, r io.Reader) error {
	reader, err := source.NewRecordingReader(r)
	if err != nil {
		return err
	}
	h := reader.Header()
	frames := 0
	for {
		if _, err := reader.Next(context.Background()); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		frames++
	}
	fmt.Fprintf(w, "id:      %s\nversion: %s\ncreated: %s\nframes:  %d\n",
		h.RecordingID, h.Version, h.CreatedAt.Format("2006-01-02 15:04:05"), frames)
	return nil
}

func printQuery(w io.Writer, r io.Reader, path string) error {
	return source.Query(r, path, func(line int, matches []any) error {
		_, err := fmt.Fprintf(w, "%d: %s\n", line, oj.JSON(matches))
		return err
	})
}
