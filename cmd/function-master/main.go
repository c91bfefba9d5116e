package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/cmd/function-master/app"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/cmd/function-master/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "function-master",
		Short: "function-master is the master-side instance/group lifecycle controller of a serverless compute platform.",
	}

	rootCmd.AddCommand(app.NewServeCommand())
	rootCmd.AddCommand(version.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
