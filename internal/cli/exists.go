package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var existsHost string

var existsCmd = &cobra.Command{
	Use:   "exists <dir> --host <host>",
	Short: "Check whether a remote directory is reachable",
	Long: `Check whether a directory on a remote host can be listed over rsync.

The probe is killed if it does not finish within probe_timeout. Exits 0
when the directory exists and 1 otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		ok := s.copier.Exists(cmd.Context(), args[0], existsHost)
		if jsonOutput {
			if err := outputJSON(map[string]any{
				"host":   existsHost,
				"dir":    args[0],
				"exists": ok,
			}); err != nil {
				return err
			}
		} else if ok {
			fmt.Printf("%s exists\n", address(existsHost, "", args[0]))
		} else {
			fmt.Printf("%s does not exist or is unreachable\n", address(existsHost, "", args[0]))
		}
		if !ok {
			return withCode(ExitFatal, nil)
		}
		return nil
	},
}

func init() {
	existsCmd.Flags().StringVar(&existsHost, "host", "", "remote host")
	_ = existsCmd.MarkFlagRequired("host")
	rootCmd.AddCommand(existsCmd)
}
