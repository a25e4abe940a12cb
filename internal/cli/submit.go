package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

type SubmitOptions struct {
	GlobalOptions

	Tools   []string
	ImageID string
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:   "submit INSTANCE_ID",
		Short: "Submit a memory analysis job for an instance.",
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

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringSliceVarP(&o.Tools, "tools", "t", o.Tools, "Analysis tools to run. Defaults to the server's tool set")
	fs.StringVar(&o.ImageID, "image", o.ImageID, "Analyze an existing image instead of capturing a new one")
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.ImageID != "" {
		if _, err := uuid.Parse(o.ImageID); err != nil {
			return fmt.Errorf("invalid image id: %s", o.ImageID)
		}
	}
	return nil
}

func (o *SubmitOptions) Run(ctx context.Context, args []string) error {
	request := api.SubmitJobRequest{
		InstanceId: args[0],
		Tools:      o.Tools,
	}
	if o.ImageID != "" {
		id := uuid.MustParse(o.ImageID)
		request.ImageId = &id
	}

	job, err := o.Client().SubmitJob(ctx, request)
	if err != nil {
		return fmt.Errorf("submitting job: %w", err)
	}

	fmt.Printf("job %s submitted for instance %s\n", job.Id, job.InstanceId)
	return nil
}
