package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weavemesh/weave/config"
)

var (
	cfgFile string
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "weaved",
	Short: "weave node: runs workflows over a content-addressed P2P swarm",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML)")
	rootCmd.PersistentFlags().String("rendezvous", "", "discovery rendezvous namespace")
	rootCmd.PersistentFlags().Int("receipt-quorum", 0, "DHT put quorum for receipt capsules")
	rootCmd.PersistentFlags().Int("workflow-quorum", 0, "DHT put quorum for workflow-info capsules")
	rootCmd.PersistentFlags().String("store-driver", "", "receipt store driver: memory or sqlite")
	rootCmd.PersistentFlags().String("store-dsn", "", "sqlite DSN, ignored for the memory driver")
	rootCmd.PersistentFlags().String("log-level", "", "zap log level: debug, info, warn, error")

	viper.BindPFlag("network.rendezvous_namespace", rootCmd.PersistentFlags().Lookup("rendezvous"))
	viper.BindPFlag("network.receipt_quorum", rootCmd.PersistentFlags().Lookup("receipt-quorum"))
	viper.BindPFlag("network.workflow_quorum", rootCmd.PersistentFlags().Lookup("workflow-quorum"))
	viper.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("store-driver"))
	viper.BindPFlag("store.dsn", rootCmd.PersistentFlags().Lookup("store-dsn"))
	viper.BindPFlag("runtime.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd, showCmd, nodeCmd, configCmd)
}

// initConfig loads defaults + cfgFile + environment into the package-level
// viper instance and binds cobra's persistent flags onto it under their
// config keys.
func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		cobra.CheckErr(err)
	}
	v = loaded
	flags := rootCmd.PersistentFlags()
	for key, name := range map[string]string{
		"network.rendezvous_namespace": "rendezvous",
		"network.receipt_quorum":       "receipt-quorum",
		"network.workflow_quorum":      "workflow-quorum",
		"store.driver":                 "store-driver",
		"store.dsn":                    "store-dsn",
		"runtime.log_level":            "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			cobra.CheckErr(err)
		}
	}
}

func loadConfig() (config.Config, error) {
	return config.Unmarshal(v)
}
