// Package cmd is the operator CLI: a Cobra command tree wrapping the same
// store, breaker, and worker packages the scheduler uses, so every command
// exercises the real persistence and delivery paths rather than a
// parallel implementation.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/malwarebo/orderbridge/config"
	"github.com/malwarebo/orderbridge/crypto"
	"github.com/malwarebo/orderbridge/logging"
	"github.com/malwarebo/orderbridge/store"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func printBanner() {
	fmt.Printf("%s%s", colorCyan, colorBold)
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║  orderbridge — Odoo to StockMaster order polling engine    ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("%s", colorReset)
}

func printStep(step, message string) {
	fmt.Printf("%s[%s]%s %s%s%s\n", colorBlue, step, colorReset, colorBold, message, colorReset)
}

func printSuccess(message string) {
	fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, message)
}

func printWarning(message string) {
	fmt.Printf("%s⚠%s %s\n", colorYellow, colorReset, message)
}

func printError(message string) {
	fmt.Printf("%s✗%s %s\n", colorRed, colorReset, message)
}

func printInfo(message string) {
	fmt.Printf("%sℹ%s %s\n", colorCyan, colorReset, message)
}

// app bundles the wiring every subcommand needs. It is populated once by
// the root command's PersistentPreRunE.
type app struct {
	cfg         *config.Config
	db          *store.Store
	encryptor   *crypto.Encryptor
	connections *store.ConnectionRepo
	sentOrders  *store.SentOrderRepo
	retryItems  *store.RetryItemRepo
	syncLogs    *store.SyncLogRepo
	log         *logging.Logger
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New("cli")

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	a.db = db

	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	a.encryptor = enc

	a.connections = store.NewConnectionRepo(db, enc)
	a.sentOrders = store.NewSentOrderRepo(db)
	a.retryItems = store.NewRetryItemRepo(db)
	a.syncLogs = store.NewSyncLogRepo(db)
	return nil
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:               "orderbridge",
		Short:             "Poll Odoo sale orders and relay them to StockMaster",
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
	}

	root.AddCommand(
		newRunCommand(a),
		newTestCommand(a),
		newResetCircuitCommand(a),
		newRetryCommand(a),
		newDiscardCommand(a),
		newStatusCommand(a),
		newMigrateCommand(a),
	)

	return root
}

// Execute runs the CLI, exiting non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}
