package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Patch-Manager/tarmac-annotate/pkg/csource"
)

var (
	functionsPath   string
	functionsTag    string
	functionsTicket string
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Dump function prototypes recovered from a C source tree",
	Long: `Scans the C source tree for function declarations with the same
best-effort pass the annotator uses, and prints every recovered prototype
with the file it came from. Duplicates are kept.`,
	Run: func(cmd *cobra.Command, args []string) {
		sourceRoot := resolveSourceRoot(functionsPath, functionsTag, functionsTicket)
		if sourceRoot == "" {
			colorError.Fprintln(os.Stderr, "Error: no source path; use --path, --tag or --ticket, or configure paths.source_root")
			cmd.Usage()
			os.Exit(1)
		}

		table := csource.Scan(sourceRoot, csource.Options{
			Extension:      viper.GetString("source.extension"),
			ExcludeMarkers: viper.GetStringSlice("source.exclude_markers"),
		})

		colorHeading.Printf("%d prototypes under %s\n", len(table), sourceRoot)
		for _, fn := range table {
			colorInfo.Printf("%s\n", fn.FileName)
			colorFunc.Printf("    %s\n", fn.Prototype())
		}
	},
}

func init() {
	RootCmd.AddCommand(functionsCmd)
	functionsCmd.Flags().StringVarP(&functionsPath, "path", "p", "", "Path to the C source files")
	functionsCmd.Flags().StringVar(&functionsTag, "tag", "", "SVN tag to append to the tags root")
	functionsCmd.Flags().StringVar(&functionsTicket, "ticket", "", "Ticket ID to append to the source root")
}
