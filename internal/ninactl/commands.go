package ninactl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ninahq/nina/pkg/logger"
)

// Defaults shared by the commands.
const (
	defaultBaseURL    = "http://localhost:9080"
	defaultTimeout    = 30 * time.Second
	defaultSeedTime   = 10 * time.Minute
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultDirectors  = 2
	defaultLeaders    = 3
	defaultMembers    = 6
	defaultMonths     = 6
	defaultComplyType = "periodic-1on1"
)

// ErrUsage reports invalid flag values.
var ErrUsage = errors.New("invalid usage")

// NewRootCommand builds the ninactl command tree.
func NewRootCommand() *cobra.Command {
	cfg := &Config{}
	root := &cobra.Command{
		Use:           "ninactl",
		Short:         "Operate a nina dashboard server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "warn"
			if cfg.Verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.BaseURL, "url", defaultBaseURL, "Base URL of the service")
	pf.StringVar(&cfg.Token, "token", os.Getenv("NINA_TOKEN"), "Bearer token (defaults to $NINA_TOKEN)")
	pf.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newSeedCommand(cfg),
		newComplianceCommand(cfg),
		newAdherenceCommand(cfg),
		newImportCommand(cfg),
		newExportCommand(cfg),
		newGrantAdminCommand(cfg),
		newBootstrapAdminCommand(cfg),
	)
	return root
}

func newSeedCommand(cfg *Config) *cobra.Command {
	sc := SeedConfig{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Post a synthetic roster with history and verify the reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sc.Directors < 1 || sc.LeadersPerDirector < 1 || sc.Months < 1 {
				return fmt.Errorf("%w: directors, leaders and months must be positive", ErrUsage)
			}
			if sc.MembersPerLeader < 0 {
				return fmt.Errorf("%w: members must not be negative", ErrUsage)
			}
			ctx := cmd.Context()
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, defaultSeedTime)
				defer cancel()
			}
			_, err := Seed(ctx, NewClient(*cfg), sc, time.Now(), cmd.OutOrStdout())
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&sc.Directors, "directors", defaultDirectors, "Number of directors")
	f.IntVar(&sc.LeadersPerDirector, "leaders", defaultLeaders, "Leaders per director")
	f.IntVar(&sc.MembersPerLeader, "members", defaultMembers, "Contributors per leader")
	f.IntVar(&sc.Months, "months", defaultMonths, "Months of history ending with the current one")
	f.IntVar(&sc.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
	f.Uint64Var(&sc.Seed, "seed", 1, "Random seed")
	f.StringVar(&sc.OutputFile, "output", "", "Write the generated dataset to this JSON file")
	f.BoolVar(&sc.SkipVerify, "skip-verify", false, "Skip the report checks")
	return cmd
}

func newComplianceCommand(cfg *Config) *cobra.Command {
	var typ, start, end, leader string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Show the compliance report of an interaction type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := time.Now()
			if start == "" {
				start = time.Date(n.Year(), time.January, 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
			}
			if end == "" {
				end = n.Format(time.DateOnly)
			}
			q := url.Values{}
			q.Set("type", typ)
			q.Set("start", start)
			q.Set("end", end)
			if leader != "" {
				q.Set("leader", leader)
			}
			var raw json.RawMessage
			if err := NewClient(*cfg).GetJSON(cmd.Context(), "/compliance", q, &raw); err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			var rep ComplianceReport
			if err := json.Unmarshal(raw, &rep); err != nil {
				return fmt.Errorf("failed to decode compliance report: %w", err)
			}
			return printCompliance(cmd.OutOrStdout(), rep)
		},
	}
	f := cmd.Flags()
	f.StringVar(&typ, "type", defaultComplyType, "Interaction type")
	f.StringVar(&start, "start", "", "Range start (YYYY-MM-DD, defaults to January 1st)")
	f.StringVar(&end, "end", "", "Range end (YYYY-MM-DD, defaults to today)")
	f.StringVar(&leader, "leader", "", "Restrict to the direct reports of this leader")
	f.BoolVar(&asJSON, "json", false, "Print the raw JSON report")
	return cmd
}

func newAdherenceCommand(cfg *Config) *cobra.Command {
	var axis string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "adherence",
		Short: "Show the monthly one-on-one adherence ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if axis != "" {
				q.Set("axis", axis)
			}
			var raw json.RawMessage
			if err := NewClient(*cfg).GetJSON(cmd.Context(), "/adherence", q, &raw); err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			var rep AdherenceReport
			if err := json.Unmarshal(raw, &rep); err != nil {
				return fmt.Errorf("failed to decode adherence report: %w", err)
			}
			return printAdherence(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVar(&axis, "axis", "", "Restrict to one axis")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON report")
	return cmd
}

func newImportCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import KIND FILE",
		Short: "Upload a CSV file of individuals or interactions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			q := url.Values{}
			q.Set("kind", args[0])
			resp, err := NewClient(*cfg).Do(cmd.Context(), http.MethodPost, "/imports", q, f, "text/csv")
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if err := decodeResponse(resp, &raw); err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), raw)
		},
	}
}

func newExportCommand(cfg *Config) *cobra.Command {
	var ids []string
	var format, output string
	var publish bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export individuals as CSV, PDF or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(ids) == 0 {
				return fmt.Errorf("%w: --ids is required", ErrUsage)
			}
			body, err := json.Marshal(map[string]any{"ids": ids, "format": format, "publish": publish})
			if err != nil {
				return err
			}
			resp, err := NewClient(*cfg).Do(cmd.Context(), http.MethodPost, "/exports", nil, strings.NewReader(string(body)), "application/json")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
				raw, err := io.ReadAll(resp.Body)
				if err != nil {
					return err
				}
				return writeIndented(cmd.OutOrStdout(), raw)
			}
			name := output
			if name == "" {
				name = attachmentName(resp.Header.Get("Content-Disposition"), format)
			}
			f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermission)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, resp.Body); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (exported %s, failed %s)\n",
				name, resp.Header.Get("X-Export-Exported"), resp.Header.Get("X-Export-Failed"))
			if missing := resp.Header.Get("X-Export-Missing"); missing != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "missing: %s\n", missing)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&ids, "ids", nil, "Comma-separated individual IDs")
	f.StringVar(&format, "format", "csv", "csv, pdf or xlsx")
	f.BoolVar(&publish, "publish", false, "Publish to Cloud Storage instead of downloading")
	f.StringVarP(&output, "output", "o", "", "Output file (defaults to the server's file name)")
	return cmd
}

func newGrantAdminCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-admin EMAIL",
		Short: "Grant the admin role to an existing individual",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postEmail(cmd, cfg, "/admin/claims", args[0])
		},
	}
}

func newBootstrapAdminCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-admin EMAIL",
		Short: "Grant the first admin from the bootstrap allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postEmail(cmd, cfg, "/admin/bootstrap", args[0])
		},
	}
}

func postEmail(cmd *cobra.Command, cfg *Config, path, email string) error {
	var out struct {
		Status       string `json:"status"`
		Email        string `json:"email"`
		IndividualID string `json:"individual_id"`
	}
	if err := NewClient(*cfg).PostJSON(cmd.Context(), path, nil, map[string]string{"email": email}, &out); err != nil {
		return err
	}
	if out.IndividualID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (individual %s)\n", out.Status, out.Email, out.IndividualID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", out.Status, out.Email)
	return nil
}

func writeIndented(w io.Writer, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCompliance(w io.Writer, rep ComplianceReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tLAST\tNEXT")
	for _, r := range rep.Results {
		status := r.Status
		if status == "partial" {
			status = fmt.Sprintf("partial (%d/%d)", r.Executed, r.Required)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, status, dateOrDash(r.LastOccurrence), dateOrDash(r.NextScheduled))
	}
	s := rep.Summary
	fmt.Fprintf(tw, "\ntotal %d\tsatisfied %d\tpartial %d\tpending %d\tn/a %d\n",
		s.Total, s.Satisfied, s.Partial, s.Pending, s.NotApplicable)
	return tw.Flush()
}

func printAdherence(w io.Writer, rep AdherenceReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLEADER\tAXIS\tDONE\tPENDING\tOVERDUE\tADHERENCE")
	for i, l := range rep.Leaders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%.1f%%\n",
			i+1, l.Name, l.Axis, l.Done, l.Pending, l.Overdue, l.Adherence)
	}
	return tw.Flush()
}

func dateOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

// attachmentName extracts the base file name from a Content-Disposition
// header, falling back to export.<format>.
func attachmentName(disposition, format string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if base := path.Base(params["filename"]); base != "." && base != "/" {
			return base
		}
	}
	return "export." + format
}
