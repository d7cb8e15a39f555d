package commands

import (
	"github.com/spf13/cobra"

	"github.com/vitwit/walletlink"
	"github.com/vitwit/walletlink/config"
	"github.com/vitwit/walletlink/types"
)

var (
	configFile string
	envFile    string

	cfg    *types.Config
	client *walletlink.Client
)

func Execute() error {
	root := &cobra.Command{
		Use:          "walletlink",
		Short:        "Wallet connectivity service for EVM networks",
		Version:      walletlink.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(config.WithConfigFile(configFile), config.WithEnvFile(envFile))
			if err != nil {
				return err
			}
			client, err = walletlink.New(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if client == nil {
				return nil
			}
			return client.Close()
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (default $WALLETLINK_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read, if present")

	root.AddCommand(serveCmd(), chainsCmd(), connectorsCmd(), probeCmd())
	return root.Execute()
}
