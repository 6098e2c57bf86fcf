package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"querybridge/internal/config"
	"querybridge/internal/driver"
	"querybridge/internal/exporter"
	"querybridge/internal/logical"
	"querybridge/internal/stream"
)

func newSchemasCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List schemas in the connected database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()

			catalog, err := state.service.Metadata(cmd.Context(), h)
			if err != nil {
				return err
			}
			for _, schema := range catalog.Schemas {
				fmt.Fprintln(cmd.OutOrStdout(), schema.Name)
			}
			return nil
		},
	}
}

func newTablesCmd(state *cliState) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables and views in a schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()

			catalog, err := state.service.Metadata(cmd.Context(), h)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			for _, s := range catalog.Schemas {
				if schema != "" && s.Name != schema {
					continue
				}
				for _, t := range s.Tables {
					fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, t.Name, t.Kind)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "restrict to one schema")
	return cmd
}

func newDescribeCmd(state *cliState) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "describe <table>",
		Short: "Show a table's columns and logical types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()

			catalog, err := state.service.Metadata(cmd.Context(), h)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			for _, s := range catalog.Schemas {
				if schema != "" && s.Name != schema {
					continue
				}
				for _, t := range s.Tables {
					if t.Name != args[0] {
						continue
					}
					for _, col := range t.Columns {
						nullable := "NOT NULL"
						if col.Nullable {
							nullable = "NULL"
						}
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", col.Position, col.Name, col.Type, nullable)
					}
					return nil
				}
			}
			return fmt.Errorf("table %q not found", args[0])
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema containing the table")
	return cmd
}

func newQueryCmd(state *cliState) *cobra.Command {
	var rowLimit int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a statement and print the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()

			batches, err := state.service.Preview(cmd.Context(), h, driver.Request{
				SQL:     args[0],
				Timeout: timeout,
			}, rowLimit)
			if err != nil {
				return err
			}
			return printBatches(cmd.OutOrStdout(), batches)
		},
	}
	cmd.Flags().IntVarP(&rowLimit, "limit", "n", 1000, "maximum rows to fetch")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "statement timeout override")
	return cmd
}

func newCountCmd(state *cliState) *cobra.Command {
	var schema, where string
	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count rows in a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()

			n, err := state.service.TableRowCount(cmd.Context(), h, schema, args[0], where)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema containing the table")
	cmd.Flags().StringVar(&where, "where", "", "filter expression without the WHERE keyword")
	return cmd
}

func newDropCmd(state *cliState) *cobra.Command {
	var schema string
	var yes, view bool
	cmd := &cobra.Command{
		Use:   "drop <table>",
		Short: "Drop a table or view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop %q without --yes", args[0])
			}
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()
			kind := logical.TableKindTable
			if view {
				kind = logical.TableKindView
			}
			return state.service.DropTable(cmd.Context(), h, schema, args[0], kind)
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema containing the table")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the drop")
	cmd.Flags().BoolVar(&view, "view", false, "drop a view instead of a table")
	return cmd
}

func newExportCmd(state *cliState) *cobra.Command {
	var (
		format    string
		delimiter string
		nullAs    string
	)
	cmd := &cobra.Command{
		Use:   "export <sql> <destination>",
		Short: "Export a query's results to a file",
		Long:  "Runs the statement and streams the results into the destination. The format is inferred from the filename extension unless --format is set.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := state.service.Connect(cmd.Context(), state.profile)
			if err != nil {
				return err
			}
			defer h.Close()

			opts := exporter.Options{NullLiteral: nullAs}
			if delimiter != "" {
				opts.Delimiter = []rune(delimiter)[0]
			}

			job, err := state.service.Export(h, driver.Request{SQL: args[0]}, exporter.Format(format), args[1], opts)
			if err != nil {
				return err
			}

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					job.Cancel()
					return cmd.Context().Err()
				case <-ticker.C:
					status := job.Status()
					rows, bytes := job.Progress()
					if !status.Terminal() {
						fmt.Fprintf(cmd.ErrOrStderr(), "\r%s rows=%d bytes=%d", strings.ToLower(string(status)), rows, bytes)
						continue
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s rows=%d bytes=%d\n", strings.ToLower(string(status)), rows, bytes)
					return job.Err()
				}
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: csv, json, xlsx, pdf, parquet")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "field delimiter for delimited text")
	cmd.Flags().StringVar(&nullAs, "null-as", "", "literal used for NULL in delimited text")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List saved connection profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.LoadProfiles()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			for _, p := range profiles.Connections {
				target := p.Path
				if target == "" {
					target = fmt.Sprintf("%s:%d/%s", p.Host, p.Port, p.Database)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Engine, target)
			}
			return nil
		},
	}
	return cmd
}

// printBatches renders materialized batches as a tab-separated table.
func printBatches(out io.Writer, batches []*stream.Batch) error {
	if len(batches) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	header := make([]string, len(batches[0].Columns))
	for i, col := range batches[0].Columns {
		header[i] = col.Name
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, b := range batches {
		for i := 0; i < b.Rows; i++ {
			row := b.Row(i)
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = logical.FormatValue(v)
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	}
	return nil
}
