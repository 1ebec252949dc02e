package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/f1-etl/internal/version"
)

// buildVersion is set at link time with -ldflags "-X main.buildVersion=...".
var buildVersion = "0.0.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the binary version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := version.ParseString(buildVersion)
		if err != nil {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), buildVersion)
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "f1-etl %s\n", v)
		return nil
	},
}

var versionParseCmd = &cobra.Command{
	Use:   "parse <version>...",
	Short: "Parse version strings into (major, minor, patch)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeParsed(cmd.OutOrStdout(), args)
	},
}

var versionCompareCmd = &cobra.Command{
	Use:   "compare <a> <b>",
	Short: "Compare two versions, printing -1, 0 or 1",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := version.ParseString(args[0])
		if err != nil {
			return err
		}
		b, err := version.ParseString(args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), a.Compare(b))
		return nil
	},
}

// writeParsed prints one line per input. Invalid inputs are reported inline
// and make the command fail after every input was printed.
func writeParsed(w io.Writer, inputs []string) error {
	var firstErr error
	for _, in := range inputs {
		v, err := version.ParseString(in)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%q -> error: %v\n", in, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		major, minor, patch := v.Tuple()
		_, _ = fmt.Fprintf(w, "%q -> (%d, %d, %d)\n", in, major, minor, patch)
	}
	return firstErr
}

func init() {
	versionCmd.AddCommand(versionParseCmd)
	versionCmd.AddCommand(versionCompareCmd)
	rootCmd.AddCommand(versionCmd)
}
