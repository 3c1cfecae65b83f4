package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesdash/salesdash/internal/app"
	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/dashboard"
	"github.com/salesdash/salesdash/internal/export"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/sales"
)

// Exporter is the part of the dashboard service the export command needs.
type Exporter interface {
	ExportSales(ctx context.Context, q dashboard.Query) ([]sales.SalesLine, error)
	ExportPending(ctx context.Context, q dashboard.Query) ([]pending.PendingLine, error)
	MonthDetails(ctx context.Context, month string) ([]sales.SalesLine, error)
}

// ExportOptions are the export command flags.
type ExportOptions struct {
	Kind      string
	Format    string
	From      string
	To        string
	Scope     string
	Month     string
	PartnerID int64
	LineID    int64
	Out       string
}

func newExportCommand(rt *runtime) *cobra.Command {
	opts := ExportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a sales, pending or monthly detail spreadsheet",
		Example: `  # National sales of March as xlsx in the current directory
  salesdash export --from 2025-03-01 --to 2025-03-31

  # Same as CSV on stdout
  salesdash export --format csv --out -

  # Monthly detail workbook
  salesdash export --kind details --month 2025-03`,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := app.Wire(cmd.Context(), rt.cfg, rt.logger, nil)
			if err != nil {
				return err
			}
			defer components.Close()

			name, data, err := RunExport(cmd.Context(), components.Service, components.Formatter(), opts, time.Now())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Out, name, data)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Kind, "kind", "sales", "What to export: sales, pending or details")
	f.StringVar(&opts.Format, "format", "xlsx", "Output format for sales: xlsx or csv")
	f.StringVar(&opts.From, "from", "", "First invoice date (YYYY-MM-DD)")
	f.StringVar(&opts.To, "to", "", "Last invoice date (YYYY-MM-DD)")
	f.StringVar(&opts.Scope, "scope", "", "Channel scope: all, national or international (default national)")
	f.StringVar(&opts.Month, "month", "", "Month for --kind details (YYYY-MM)")
	f.Int64Var(&opts.PartnerID, "partner", 0, "Restrict to one customer id")
	f.Int64Var(&opts.LineID, "line", 0, "Restrict to one commercial line id")
	f.StringVar(&opts.Out, "out", ".", "Output directory, file path, or - for stdout")
	return cmd
}

// RunExport renders the requested export and returns its file name and content.
func RunExport(ctx context.Context, svc Exporter, f export.Formatter, opts ExportOptions, now time.Time) (string, []byte, error) {
	q, err := exportQuery(opts)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	switch strings.ToLower(opts.Kind) {
	case "", "sales":
		lines, err := svc.ExportSales(ctx, q)
		if err != nil {
			return "", nil, err
		}
		switch strings.ToLower(opts.Format) {
		case "", "xlsx":
			err = export.WriteXLSX(&buf, export.SalesSheet, export.SalesColumns, lines, f)
			return export.SalesFilename(now, "xlsx"), buf.Bytes(), err
		case "csv":
			err = export.WriteCSV(&buf, export.SalesColumns, lines, f)
			return export.SalesFilename(now, "csv"), buf.Bytes(), err
		default:
			return "", nil, fmt.Errorf("export: unknown format %q", opts.Format)
		}
	case "pending":
		q.Scope = classify.ScopeAll
		lines, err := svc.ExportPending(ctx, q)
		if err != nil {
			return "", nil, err
		}
		err = export.WriteXLSX(&buf, export.PendingSheet, export.PendingColumns, lines, f)
		return export.PendingFilename(now), buf.Bytes(), err
	case "details":
		if opts.Month == "" {
			return "", nil, fmt.Errorf("export: --month is required for details")
		}
		lines, err := svc.MonthDetails(ctx, opts.Month)
		if err != nil {
			return "", nil, err
		}
		err = export.WriteXLSX(&buf, export.DetailsSheet(opts.Month), export.SalesColumns, lines, f)
		return export.DetailsFilename(opts.Month), buf.Bytes(), err
	default:
		return "", nil, fmt.Errorf("export: unknown kind %q", opts.Kind)
	}
}

func exportQuery(opts ExportOptions) (dashboard.Query, error) {
	scope, err := classify.ParseScope(opts.Scope, classify.ScopeNational)
	if err != nil {
		return dashboard.Query{}, err
	}
	q := dashboard.Query{Scope: scope, PartnerID: opts.PartnerID, CommercialLineID: opts.LineID}
	if q.DateFrom, err = parseDay(opts.From); err != nil {
		return dashboard.Query{}, fmt.Errorf("export: --from: %w", err)
	}
	if q.DateTo, err = parseDay(opts.To); err != nil {
		return dashboard.Query{}, fmt.Errorf("export: --to: %w", err)
	}
	if !q.DateFrom.IsZero() && !q.DateTo.IsZero() && q.DateTo.Before(q.DateFrom) {
		return dashboard.Query{}, fmt.Errorf("export: --to is before --from")
	}
	return q, nil
}

func parseDay(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}

// writeOutput writes data to stdout for "-", into dir when out is a directory,
// or to the named file otherwise.
func writeOutput(stdout io.Writer, out, name string, data []byte) error {
	if out == "-" {
		_, err := stdout.Write(data)
		return err
	}
	path := out
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		path = filepath.Join(out, name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	_, _ = fmt.Fprintln(stdout, path)
	return nil
}
