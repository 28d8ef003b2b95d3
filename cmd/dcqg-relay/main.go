package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Autuamn/dcqg-relay/cmd/dcqg-relay/internal"
	"github.com/Autuamn/dcqg-relay/cmd/dcqg-relay/internal/serve"
	"github.com/Autuamn/dcqg-relay/cmd/dcqg-relay/internal/version"
)

func NewRelayCommand() *cobra.Command {
	short := fmt.Sprintf("dcqg-relay - QQ guild / Discord message bridge v%s", internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "dcqg-relay",
		Short:   short,
		Example: "dcqg-relay serve --config ~/.dcqg-relay/config.json",
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewRelayCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
