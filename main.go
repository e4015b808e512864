package main

import (
	"context"

	"github.com/spf13/cobra"

	"trojascan/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
