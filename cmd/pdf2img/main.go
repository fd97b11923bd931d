// Package main はローカルで変換と掃除を行うコマンドラインツールです。
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/logging"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdf2img",
		Short:         "Convert PDF files to page images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newConvertCmd())
	root.AddCommand(newSweepCmd())
	return root
}

// loadConfig は設定を読み込み、CLI 用のロガーを作ります。
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "pdf2img-cli",
	})
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
