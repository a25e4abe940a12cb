package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ReportOptions struct {
	GlobalOptions

	Output string
}

func DefaultReportOptions() *ReportOptions {
	return &ReportOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdReport() *cobra.Command {
	o := DefaultReportOptions()
	cmd := &cobra.Command{
		Use:   "report JOB_ID",
		Short: "Download the HTML report of a completed job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ReportOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, "Path of the downloaded report. Defaults to report-JOB_ID.html")
}

func (o *ReportOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid job id: %s", args[0])
	}
	return nil
}

func (o *ReportOptions) Run(ctx context.Context, args []string) error {
	id := uuid.MustParse(args[0])

	path := o.Output
	if path == "" {
		path = fmt.Sprintf("report-%s.html", id)
	}

	if err := o.Client().DownloadReport(ctx, id, path); err != nil {
		return fmt.Errorf("downloading report: %w", err)
	}

	fmt.Printf("report written to %s\n", path)
	return nil
}
