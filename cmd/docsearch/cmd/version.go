package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docsearch/internal/output"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

// versionFormats are the values of `version --output`.
var versionFormats = []string{"text", "short", "json", "yaml"}

// buildReport is what `docsearch version` prints: the build plus the
// strategies compiled into it.
type buildReport struct {
	version.BuildInfo `yaml:",inline"`
	Strategies        []string `json:"strategies" yaml:"strategies"`
}

func newVersionCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build and strategy information",
		Example: `  docsearch version
  docsearch version -o short
  docsearch version -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := buildReport{BuildInfo: version.GetInfo(), Strategies: strategy.Names()}
			w := cmd.OutOrStdout()

			switch format {
			case "short":
				_, err := fmt.Fprintln(w, report.Version)
				return err
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			case "yaml":
				return yaml.NewEncoder(w).Encode(report)
			case "text":
				out := output.New(w)
				out.Header("docsearch " + report.Version)
				out.KeyValue("commit", report.Commit)
				out.KeyValue("built", report.Date)
				out.KeyValue("go", report.GoVersion)
				out.KeyValue("platform", report.OS+"/"+report.Arch)
				out.KeyValue("strategies", strings.Join(report.Strategies, ", "))
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(versionFormats, ", "))
			}
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: "+strings.Join(versionFormats, ", "))

	return cmd
}
