// storefront is the command-line client for the storefront runtime.
// Each command performs a single operation against the same device store
// that storefrontd uses, making it composable for scripts.
//
// Examples:
//
//	storefront device
//	storefront cart add 60 --qty 2
//	storefront wishlist add 60
//	storefront login "$TOKEN"
//	storefront cart get --json | jq .total
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/app"
	"storefront/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli carries the global flags and the App opened for the running command.
type cli struct {
	jsonOut bool
	quiet   bool
	verbose bool

	// open builds the App; replaced in tests.
	open func(ctx context.Context, logger *slog.Logger) (*app.App, error)
	app  *app.App
	out  *printer
}

func main() {
	c := &cli{open: openApp}
	err := newRootCmd(c).Execute()
	// PersistentPostRunE is skipped when a command fails.
	if cerr := c.close(); err == nil {
		err = cerr
	}
	if err != nil {
		c.printer(os.Stderr).fail(err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context, logger *slog.Logger) (*app.App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return app.New(cfg, version, logger)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront cart and wishlist client",
		Long: `storefront works on the device cart, wishlist and session.

Cart changes are applied optimistically and confirmed by the server.
Wishlist changes are saved on this device and pushed in the background;
pending pushes are flushed before the command exits.

Configuration comes from CONFIG_FILE or the STOREFRONT_* environment
variables, as for storefrontd.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.out = c.printer(cmd.OutOrStdout())
			a, err := c.open(cmd.Context(), c.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print raw JSON")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "print only essential output")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		newDeviceCmd(c),
		newCartCmd(c),
		newLocalCartCmd(c),
		newWishlistCmd(c),
		newLoginCmd(c),
		newLogoutCmd(c),
		newSessionCmd(c),
		newProductCmd(c),
		newHistoryCmd(c),
		newDeadLettersCmd(c),
	)
	return root
}

// close drains pending wishlist pushes and releases the store.
func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

func (c *cli) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// symbol is the currency symbol used for display.
func (c *cli) symbol() string {
	if c.app != nil && c.app.Config.API.CurrencySymbol != "" {
		return c.app.Config.API.CurrencySymbol
	}
	return config.DefaultCurrencySymbol
}

// emit prints v as JSON with --json, otherwise calls human.
func (c *cli) emit(v any, human func()) error {
	if c.jsonOut {
		return c.out.json(v)
	}
	human()
	return nil
}
