package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

type GetOptions struct {
	GlobalOptions

	Output     string
	InstanceID string
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get (TYPE | TYPE/ID)",
		Short: "Display one or many resources.",
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringVarP(&o.InstanceID, "instance", "i", o.InstanceID, "Only list resources belonging to this instance")
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	_, _, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	return nil
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	var response any
	switch {
	case kind == JobKind && id != nil:
		response, err = c.GetJob(ctx, *id)
	case kind == JobKind && id == nil:
		response, err = c.ListJobs(ctx, o.InstanceID)
	case kind == ImageKind && id == nil:
		response, err = c.ListImages(ctx, o.InstanceID)
	case kind == InstanceKind && id == nil:
		response, err = c.ListInstances(ctx)
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
	if err != nil {
		if id != nil {
			return fmt.Errorf("reading %s/%s: %w", kind, id, err)
		}
		return fmt.Errorf("listing %s: %w", plural(kind), err)
	}

	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	default:
		return printTable(response, kind)
	}
}

func printTable(response any, kind string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	switch kind {
	case JobKind:
		switch jobs := response.(type) {
		case api.JobList:
			printJobsTable(w, jobs...)
		case *api.Job:
			printJobsTable(w, *jobs)
		}
	case ImageKind:
		printImagesTable(w, response.(api.ImageList)...)
	case InstanceKind:
		printInstancesTable(w, response.(api.InstanceList)...)
	default:
		return fmt.Errorf("unknown resource type %s", kind)
	}
	w.Flush()
	return nil
}

func printJobsTable(w *tabwriter.Writer, jobs ...api.Job) {
	fmt.Fprintln(w, "ID\tINSTANCE\tSTATUS\tPROGRESS\tSTEP\tERROR")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n", job.Id, job.InstanceId, job.Status, job.Progress, job.CurrentStep, job.Error)
	}
}

func printImagesTable(w *tabwriter.Writer, images ...api.Image) {
	fmt.Fprintln(w, "ID\tINSTANCE\tDOMAIN\tFORMAT\tSIZE\tCREATED")
	for _, image := range images {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", image.Id, image.InstanceId, image.Domain, image.Format, humanize.Bytes(uint64(image.SizeBytes)), humanize.Time(image.CreatedAt))
	}
}

func printInstancesTable(w *tabwriter.Writer, instances ...api.Instance) {
	fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tSTATE")
	for _, instance := range instances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", instance.Id, instance.Name, instance.Domain, instance.State)
	}
}
