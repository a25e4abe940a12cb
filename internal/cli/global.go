package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/virtforensics/memory-inspector/internal/client"
)

type GlobalOptions struct {
	ServerUrl string
}

func DefaultGlobalOptions() GlobalOptions {
	serverUrl := "http://localhost:3443"
	if fromEnv := os.Getenv("INSPECTOR_SERVER_URL"); fromEnv != "" {
		serverUrl = fromEnv
	}
	return GlobalOptions{
		ServerUrl: serverUrl,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the server")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

func (o *GlobalOptions) Client() *client.Client {
	return client.New(o.ServerUrl)
}
