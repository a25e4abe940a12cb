package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type CancelOptions struct {
	GlobalOptions
}

func DefaultCancelOptions() *CancelOptions {
	return &CancelOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCancel() *cobra.Command {
	o := DefaultCancelOptions()
	cmd := &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a running job.",
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

func (o *CancelOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid job id: %s", args[0])
	}
	return nil
}

func (o *CancelOptions) Run(ctx context.Context, args []string) error {
	job, err := o.Client().CancelJob(ctx, uuid.MustParse(args[0]))
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}

	fmt.Printf("job %s is %s\n", job.Id, job.Status)
	return nil
}
