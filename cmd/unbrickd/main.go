package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wa4h1h/unbrickd/internal/console"
	"github.com/Wa4h1h/unbrickd/pkg/server"
	"github.com/Wa4h1h/unbrickd/pkg/types"
	"github.com/Wa4h1h/unbrickd/pkg/utils"
	"github.com/spf13/cobra"
)

var (
	cfg      = server.DefaultConfig()
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "unbrickd",
	Short: "serve a firmware image to a device stuck in tftp recovery mode",
	Long: `unbrickd binds the recovery address the bricked bootloader expects,
answers its SWKH discovery probe and serves the firmware image over a
single lock-step tftp transfer, then exits.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&cfg.BindAddr, "ip", server.DefaultBindAddr, "IP address the recovery sockets bind to")
	rootCmd.Flags().StringVar(&cfg.FirmwarePath, "file", server.DefaultFirmwareFile, "firmware image to serve")
	rootCmd.Flags().IntVar(&cfg.Port, "port", types.TFTPPort, "tftp service port")
	rootCmd.Flags().IntVar(&cfg.HandshakePort, "handshake-port", types.HandshakePort, "SWKH discovery probe port")
	rootCmd.Flags().IntVar(&cfg.BlockSize, "blocksize", types.DefaultBlockSize, "initial data block size in bytes")
	rootCmd.Flags().DurationVar(&cfg.AckTimeout, "timeout", server.DefaultAckTimeout, "per-block wait for an acknowledgment")
	rootCmd.Flags().IntVar(&cfg.MaxRetries, "retries", server.DefaultMaxRetries, "retransmissions per unacknowledged block")
	rootCmd.Flags().StringVar(&logLevel, "loglevel", "info", "log level: debug, info, warn, error")
}

func run(cmd *cobra.Command, _ []string) error {
	l := utils.NewLogger(logLevel).Sugar()
	defer func() {
		_ = l.Sync()
	}()

	srv, err := server.NewServer(l, cfg, console.NewSink())
	if err != nil {
		return err
	}

	// Operator interrupt reaches the session as a cancellation at any
	// suspension point, including the indefinite wait for the device.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, utils.ErrCancelled):
		// Deliberate operator action, not an error.
		return nil
	case errors.Is(err, utils.ErrAddrNotAvailable):
		printAliasHelp(cfg.BindAddr)

		return err
	default:
		return err
	}
}

// printAliasHelp explains how to assign the recovery IP, the most common
// setup mistake when unbricking a device.
func printAliasHelp(ip string) {
	fmt.Fprintf(os.Stderr, `
%s is not assigned to any interface on this machine. Add it first:
  Linux:   sudo ip addr add %s/24 dev <interface>
  macOS:   sudo ifconfig <interface> alias %s
  Windows: netsh interface ipv4 add address "<interface>" %s 255.255.255.0
`, ip, ip, ip, ip)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
