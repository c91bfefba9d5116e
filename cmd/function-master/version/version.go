// Package version implements the version subcommand, grounded on milo's
// cmd/milo/version.NewCommand shape.
package version

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// These are overridden at build time via -ldflags, e.g.
// -X .../version.GitVersion=v1.2.3.
var (
	GitVersion   = "dev"
	GitCommit    = "none"
	GitTreeState = "unknown"
	BuildDate    = "unknown"
	GoVersion    = "unknown"
)

// Info is the version payload in every output format.
type Info struct {
	GitVersion   string `json:"gitVersion"`
	GitCommit    string `json:"gitCommit"`
	GitTreeState string `json:"gitTreeState"`
	BuildDate    string `json:"buildDate"`
	GoVersion    string `json:"goVersion"`
}

// Get returns the current build's version Info.
func Get() Info {
	return Info{
		GitVersion:   GitVersion,
		GitCommit:    GitCommit,
		GitTreeState: GitTreeState,
		BuildDate:    BuildDate,
		GoVersion:    GoVersion,
	}
}

// NewCommand builds the version subcommand.
func NewCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := Get()
			switch output {
			case "json":
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			case "yaml":
				data, err := yaml.Marshal(info)
				if err != nil {
					return err
				}
				fmt.Print(string(data))
			case "short":
				fmt.Println(info.GitVersion)
			default:
				fmt.Printf("function-master version: %s\n", info.GitVersion)
				fmt.Printf("Git commit: %s\n", info.GitCommit)
				fmt.Printf("Git tree state: %s\n", info.GitTreeState)
				fmt.Printf("Build date: %s\n", info.BuildDate)
				fmt.Printf("Go version: %s\n", info.GoVersion)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format. One of: json|yaml|short")
	return cmd
}
