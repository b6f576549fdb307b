package main

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/becomeliminal/recall/config"
)

// NewRootCmd creates the root recall command with all subcommands registered.
// Each invocation gets its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "recall",
		Short:         "recall - a chatbot that remembers",
		Long:          "recall answers each message with the most relevant things you told it before, then remembers the new message.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd, v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default ./recall.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log pipeline diagnostics to stderr")

	root.AddCommand(
		newChatCmd(v),
		newServeCmd(v),
		newVersionCmd(),
	)

	return root
}

// initViper applies defaults, env bindings, the optional config file and
// flag bindings so precedence is flag > env > file > defaults.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	_ = godotenv.Load()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("recall")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/recall")
		// No config file is fine. Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return fmt.Errorf("binding verbose flag: %w", err)
	}

	return nil
}

// quietLogs silences diagnostics unless --verbose was given.
func quietLogs(v *viper.Viper) {
	if !v.GetBool("verbose") {
		log.SetOutput(io.Discard)
	}
}
