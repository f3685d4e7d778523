package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jvs-project/rcopy/internal/exitcode"
	"github.com/jvs-project/rcopy/pkg/color"
)

var codesCmd = &cobra.Command{
	Use:   "codes [exit-code]",
	Short: "Explain how rsync exit codes are classified",
	Long: `List the rsync exit codes rcopy knows and whether each one is
retried. With an argument, explain that single exit code. Exit codes not
listed are treated as fatal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := exitcode.Entries()
		if len(args) == 1 {
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid exit code %q", args[0])
			}
			e, ok := exitcode.Lookup(code)
			if !ok {
				return fmt.Errorf("exit code %d is not a documented rsync exit code and is treated as fatal", code)
			}
			entries = []exitcode.Entry{e}
		}

		if jsonOutput {
			return outputJSON(entries)
		}
		for _, e := range entries {
			fmt.Printf("%3d  %s  %s\n", e.Code, color.Kind(e.Kind), e.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(codesCmd)
}
