package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/garrettladley/rally/internal/version"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "rally",
		Short:   "Live notifications in your terminal",
		Version: version.Get(),
		RunE:    runListen,
	}

	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(logoutCmd())
	addDevCommands(rootCmd)

	if err := fang.Execute(context.Background(), rootCmd, fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM)); err != nil {
		os.Exit(1)
	}
}
