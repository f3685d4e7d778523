package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvs-project/rcopy/pkg/color"
)

var checkRemote bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that rsync is installed and recent enough",
	Long: `Verify that the configured rsync executable runs and meets
minimum_version. With --remote, also check the rsync on every host listed
under remote_hosts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.copier.Check(cmd.Context()); err != nil {
			return err
		}
		v, err := s.copier.Version(cmd.Context())
		if err != nil {
			return err
		}

		failed := 0
		remotes := map[string]string{}
		if checkRemote {
			results, err := s.copier.CheckRemotes(cmd.Context(), s.cfg.Hosts(), s.cfg.RemoteRsync())
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					failed++
					remotes[r.Host] = r.Err.Error()
					if !jsonOutput {
						fmt.Printf("%s %s: %v\n", color.Error("FAIL"), r.Host, r.Err)
					}
					continue
				}
				remotes[r.Host] = r.Tool.Version.String()
				if !jsonOutput {
					fmt.Printf("%s %s: rsync %s (%s)\n", color.Success("OK"), r.Host, r.Tool.Version, r.Tool.Executable)
				}
			}
		}

		if jsonOutput {
			out := map[string]any{
				"executable": s.cfg.RsyncExecutable,
				"version":    v.String(),
				"minimum":    s.copier.Minimum().String(),
			}
			if checkRemote {
				out["remotes"] = remotes
			}
			if err := outputJSON(out); err != nil {
				return err
			}
		} else {
			fmt.Printf("rsync %s at %s (minimum %s)\n", v, s.cfg.RsyncExecutable, s.copier.Minimum())
		}

		if failed > 0 {
			return withCode(ExitFatal, fmt.Errorf("%d remote host(s) failed the check", failed))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkRemote, "remote", false, "also check rsync on configured remote hosts")
	rootCmd.AddCommand(checkCmd)
}
