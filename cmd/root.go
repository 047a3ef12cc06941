package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coder7br/tjscope/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	 _   _
	| |_(_)___  ___ ___  _ __   ___
	| __| / __|/ __/ _ \| '_ \ / _ \
	| |_| \__ \ (_| (_) | |_) |  __/
	 \__| |___/\___\___/| .__/ \___|
	 |__/               |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tjscope",
	Short: "Consulta processos do TJSP por número OAB.",
	Long: LOGO + `tjscope consulta o portal e-SAJ do TJSP por número OAB, indexa todos os
processos encontrados e serve os resultados por um bot do Telegram ou direto
no terminal.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tjscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".tjscope")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.tjscope.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("gist.id", "")
	viper.SetDefault("gist.token", "")
	viper.SetDefault("admins", []string{})
	viper.SetDefault("cache.path", "processo_links.db")
	viper.SetDefault("artifacts.dir", "processos")
	viper.SetDefault("server.addr", ":10000")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
