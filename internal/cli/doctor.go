package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jvs-project/rcopy/internal/doctor"
	"github.com/jvs-project/rcopy/pkg/color"
)

var doctorStrict bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the rsync setup",
	Long: `Check the rsync setup.

Checks the local rsync executable and the ssh client, and reports leftovers
of interrupted configuration writes. Use --strict to also contact every
host listed under remote_hosts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		doc := doctor.NewDoctor(s.copier, s.cfg, filepath.Dir(configPath))
		result, err := doc.Check(cmd.Context(), doctorStrict)
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			fmt.Printf("Setup is healthy (rsync %s).\n", result.Version)
		} else {
			fmt.Printf("Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				fmt.Printf("  [%s] %s: %s\n", severity(f.Severity), f.Category, f.Description)
			}
		}

		if !result.Healthy {
			return withCode(ExitFatal, nil)
		}
		return nil
	},
}

func severity(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	default:
		return color.Dim(s)
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "also check rsync on configured remote hosts")
	rootCmd.AddCommand(doctorCmd)
}
