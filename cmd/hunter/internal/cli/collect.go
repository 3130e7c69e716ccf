package cli

import (
	"fmt"

	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/config"
	"github.com/smartshare/hunter/internal/coordinator"
	"github.com/smartshare/hunter/internal/driver"
	"github.com/smartshare/hunter/internal/logging"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/rule"
	"github.com/spf13/cobra"
)

type protocol string

const (
	protocolFTP   protocol = "ftp"
	protocolNFS   protocol = "nfs"
	protocolSMB   protocol = "smb"
	protocolLocal protocol = "local"
)

// newCollectCmd builds the `ftp|nfs|smb|local [connection flags] -w
// <workspace>` subcommand for one protocol (§6). All four share the --root
// flag and the same coordinator wiring; the connection flags are registered
// for ftp, nfs and smb only, and the driver differs per protocol.
func newCollectCmd(p protocol) *cobra.Command {
	var address string
	var port int
	var share string
	var username, password, domain, ntlmHash string
	var useTLS bool
	var roots []string

	cmd := &cobra.Command{
		Use:   string(p) + " [connection flags] -w <workspace>",
		Short: fmt.Sprintf("collect a %s host into a workspace", p),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				return failWith(ExitMisuse, fmt.Errorf("%s: -w/--workspace is required", p))
			}
			if address == "" && p != protocolLocal {
				return failWith(ExitMisuse, fmt.Errorf("%s: --address is required", p))
			}
			if len(roots) == 0 {
				return failWith(ExitMisuse, fmt.Errorf("%s: at least one --root is required", p))
			}

			rf, rules, err := config.LoadRuleFile(ruleFile)
			if err != nil {
				return failWith(ExitMisuse, err)
			}

			st, err := openStore()
			if err != nil {
				return failWith(ExitDatabaseError, err)
			}
			defer st.Close()

			if err := st.PutRuleSnapshot(cmd.Context(), workspace, snapshotOf(rules)); err != nil {
				return failWith(ExitDatabaseError, err)
			}

			an := analyzer.New(workspace, rules, st, analyzer.Thresholds{
				MaxFileSizeBytes:    rf.MaxFileSizeBytes,
				MaxArchiveSizeBytes: rf.MaxArchiveSizeBytes,
				SupportedArchives:   rf.SupportedArchives,
			})

			drv, err := driverFor(p)
			if err != nil {
				return failWith(ExitAllDriversFailed, err)
			}

			host := model.Host{
				Workspace: workspace,
				Protocol:  model.Protocol(p),
				Address:   address,
				Port:      port,
				Share:     share,
			}
			creds := driver.Credentials{
				Username: username,
				Password: password,
				Domain:   domain,
				NTLMHash: ntlmHash,
				UseTLS:   useTLS,
			}

			co := coordinator.New(workspace, coordinator.Drivers{model.Protocol(p): drv}, an, coordinator.Config{})
			summary, err := co.Run(cmd.Context(), []coordinator.HostTarget{{Host: host, Creds: creds, Roots: roots}})
			printSummary(summary)
			if err != nil {
				if cmd.Context().Err() != nil {
					return failWith(ExitCancelled, err)
				}
				return failWith(ExitAllDriversFailed, err)
			}
			return nil
		},
	}

	if p != protocolLocal {
		cmd.Flags().StringVar(&address, "address", "", "host address")
		cmd.Flags().IntVar(&port, "port", defaultPort(p), "host port")
		cmd.Flags().StringVar(&share, "share", "", "share/export name")
		cmd.Flags().StringVar(&username, "username", "", "auth username")
		cmd.Flags().StringVar(&password, "password", "", "auth password")
		cmd.Flags().StringVar(&domain, "domain", "", "auth domain (SMB)")
		cmd.Flags().StringVar(&ntlmHash, "ntlm-hash", "", "pass-the-hash NTLM hash (SMB)")
		cmd.Flags().BoolVar(&useTLS, "tls", false, "use TLS (FTP)")
	}
	cmd.Flags().StringArrayVar(&roots, "root", nil, "root path to enumerate (repeatable)")
	return cmd
}

func defaultPort(p protocol) int {
	switch p {
	case protocolFTP:
		return 21
	case protocolSMB:
		return 445
	case protocolNFS:
		return 2049
	default:
		return 0
	}
}

func driverFor(p protocol) (driver.Driver, error) {
	switch p {
	case protocolFTP:
		return &driver.FTPDriver{}, nil
	case protocolNFS:
		return &driver.NFSDriver{}, nil
	case protocolSMB:
		return &driver.SMBDriver{}, nil
	case protocolLocal:
		return &driver.LocalDriver{FollowSymlinks: false, OneFileSystem: true}, nil
	default:
		return nil, fmt.Errorf("no driver for protocol %q", p)
	}
}

func snapshotOf(rules *rule.Set) []model.RuleSnapshot {
	all := rules.All()
	snapshots := make([]model.RuleSnapshot, len(all))
	for i, r := range all {
		snapshots[i] = r.Snapshot()
	}
	return snapshots
}

func printSummary(s coordinator.Summary) {
	logging.For("hunter").WithField("hosts", s.HostsEnumerated).
		WithField("files_inspected", s.FilesInspected).
		WithField("unique_contents", s.UniqueContents).
		WithField("aborted", s.Aborted).
		Info("collection summary")
}
