package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(-1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "neventgen",
		Short: "neventgen - neutron detector event stream generator",
		Long: `neventgen loads raw neutron detector events from a file, an object store or a
synthetic generator, optionally amplifies them, and streams them to a message
broker as a paced sequence of self-describing wire messages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	(&profiler{}).register(root)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "neventgen v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newRunCmd())
	root.AddCommand(newEncodeCmd())
	root.AddCommand(newSynthCmd())
	return root
}
