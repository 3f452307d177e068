package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srgg/blecentral/central"
	"github.com/srgg/blecentral/internal/osble"
	"github.com/srgg/blecentral/internal/peripheral"
)

var (
	scanDuration time.Duration
	scanMinRSSI  int
)

// scanCmd represents the scan command: scan for a fixed duration, then
// print every discovered peripheral as a table.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE peripherals",
	Long: `Scan for Bluetooth Low Energy peripherals in the vicinity and print a
table of what was found: peripheral id, advertised name, RSSI, and
connection state.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", cliConfig.ScanTimeout, "Scan duration")
	scanCmd.Flags().IntVar(&scanMinRSSI, "min-rssi", -65, "Ignore advertisements weaker than this RSSI")
}

func runScan(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg := central.DefaultConfig()
	cfg.MinRSSI = int8(scanMinRSSI)

	adapter := osble.NewGoBLEAdapter(logger)
	mgr := central.NewManager(adapter, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Start(ctx)
	if err := mgr.ScanNearbyDevices(ctx, false); err != nil {
		return fmt.Errorf("starting scan: %w", err)
	}

	timeout := time.NewTimer(scanDuration)
	defer timeout.Stop()
	select {
	case <-ctx.Done():
	case <-timeout.C:
	}
	mgr.StopScanning()

	printPeripheralTable(cmd, mgr.NearbyPeripherals())
	return nil
}

func printPeripheralTable(cmd *cobra.Command, peripherals []*peripheral.Peripheral) {
	sort.Slice(peripherals, func(i, j int) bool {
		return peripherals[i].Storage.RSSI() > peripherals[j].Storage.RSSI()
	})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	headerColor := color.New(color.FgCyan, color.Bold)
	if !cliConfig.Color {
		headerColor.DisableColor()
	}
	_, _ = headerColor.Fprintln(w, "ID\tNAME\tRSSI\tSTATE")
	for _, p := range peripherals {
		name := p.Storage.Name()
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, name, p.Storage.RSSI(), p.Storage.State())
	}
	_ = w.Flush()
}
