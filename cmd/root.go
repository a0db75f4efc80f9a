package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	slogxtCobra "github.com/fornellas/slogxt/cobra"
	"github.com/fornellas/slogxt/log"
)

var envPrefix = "GRBLBRIDGE"

var envFile string
var defaultEnvFile = ".env"

var logDebugPath string
var logDebugFile io.WriteCloser
var logDebugFileLogger *slog.Logger
var defaultLogDebugPath = ""

func getCmdChainStr(cmd *cobra.Command) string {
	cmdChain := []string{cmd.Name()}
	for {
		parentCmd := cmd.Parent()
		if parentCmd == nil {
			break
		}
		cmdChain = append([]string{parentCmd.Name()}, cmdChain...)
		cmd = parentCmd
	}
	return "⚙️ " + strings.Join(cmdChain, " ")
}

// loadEnvFile loads variables from path into the environment, without overriding existing ones.
// A missing file is only an error when the flag was set explicitly.
func loadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// bindEnv sets unchanged flags from GRBLBRIDGE_* environment variables.
func bindEnv(cmd *cobra.Command) error {
	// Inspired by https://github.com/spf13/viper/issues/671#issuecomment-671067523
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			if setErr := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); setErr != nil {
				err = errors.Join(err, fmt.Errorf("invalid %s_%s: %w", envPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), setErr))
			}
		}
	})
	return err
}

var RootCmd = &cobra.Command{
	Use:   "grblbridge",
	Short: "Grbl serial protocol bridge",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Environment Flags
		if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
			return err
		}
		if err := bindEnv(cmd); err != nil {
			return err
		}

		// Logging
		logger := slogxtCobra.GetLogger(cmd.OutOrStderr()).
			WithGroup(getCmdChainStr(cmd))
		ctx := log.WithLogger(cmd.Context(), logger)
		cmd.SetContext(ctx)

		if logDebugPath != "" {
			var err error
			logDebugFile, err = os.OpenFile(logDebugPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return err
			}
			debugFileHandler := log.NewTerminalLineHandler(logDebugFile, &log.TerminalHandlerOptions{
				HandlerOptions: slog.HandlerOptions{
					Level: slog.LevelDebug,
				},
				ForceColor: true,
			}).WithGroup(getCmdChainStr(cmd))
			logDebugFileLogger = slog.New(debugFileHandler)

			logger := slog.New(log.NewMultiHandler(debugFileHandler, logger.Handler()))
			ctx = log.WithLogger(cmd.Context(), logger)
			cmd.SetContext(ctx)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logDebugFile != nil {
			return logDebugFile.Close()
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			logger := log.MustLogger(cmd.Context())
			logger.Error("Failed to display help", "err", err)
		}
		Exit(1)
	},
}

var resetFlagsFns = []func(){
	func() { slogxtCobra.Reset() },
}

func ResetFlags() {
	for _, resetFlagFn := range resetFlagsFns {
		resetFlagFn()
	}
}

func init() {
	slogxtCobra.AddLoggerFlags(RootCmd)

	RootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", defaultEnvFile,
		"Load "+envPrefix+"_* environment variables from this file, if it exists.",
	)

	RootCmd.PersistentFlags().StringVarP(
		&logDebugPath, "log-debug-path", "", defaultLogDebugPath,
		"Truncate file and write debugging logging to it.",
	)

	resetFlagsFns = append(resetFlagsFns, func() {
		envFile = defaultEnvFile
		logDebugPath = defaultLogDebugPath
	})
}
