package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srgg/blecentral/central"
	"github.com/srgg/blecentral/internal/codec"
	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/osble"
)

// watchCmd represents the watch command: bind a declarative health
// thermometer device to the first matching peripheral and stream its
// decoded temperature measurements.
var watchCmd = &cobra.Command{
	Use:   "watch <name-substring>",
	Short: "Connect to a thermometer by name and stream measurements",
	Long: `Watch for a BLE health thermometer whose advertised name contains the
given substring, connect to it, and print every decoded temperature
measurement until interrupted.

Example:
  blecentral watch Thermo`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchConnectTimeout time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchConnectTimeout, "timeout", cliConfig.DeviceTimeout, "Connection timeout")
}

func decodeTemperature(b []byte) (gatt.TemperatureMeasurement, bool) {
	var m gatt.TemperatureMeasurement
	ok := m.Decode(b, codec.LittleEndian)
	return m, ok
}

func encodeTemperature(m gatt.TemperatureMeasurement) []byte {
	return m.Encode(codec.LittleEndian)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	thermoSvc := gatt.UUID16(gatt.ServiceHealthThermo)
	thermoChr := gatt.UUID16(gatt.CharTemperatureMeasurement)

	measurement := central.NewCharacteristic(thermoSvc, thermoChr, decodeTemperature, encodeTemperature).
		WithDefaultNotify()
	device := central.NewDevice().
		WithService(central.NewService(thermoSvc).With(measurement))

	adapter := osble.NewGoBLEAdapter(logger)
	mgr := central.NewManager(adapter, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	mgr.Start(ctx)

	matched := make(chan string, 1)
	mgr.RegisterDiscovery(
		discovery.NewDiscoveryCriteria(
			discovery.AspectNameSubstringOf(args[0]),
			discovery.AspectServiceOf(thermoSvc, nil),
		),
		func() *central.Device {
			select {
			case matched <- args[0]:
			default:
			}
			return device
		},
	)

	if err := mgr.ScanNearbyDevices(ctx, true); err != nil {
		return fmt.Errorf("starting scan: %w", err)
	}
	defer mgr.StopScanning()

	fmt.Fprintf(cmd.OutOrStdout(), "scanning for %q...\n", args[0])
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-matched:
	}

	connectCtx, cancel := context.WithTimeout(ctx, watchConnectTimeout)
	defer cancel()
	if err := device.Connect(connectCtx, &osble.ConnectOptions{Timeout: watchConnectTimeout}); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	if err := device.Peripheral().Connected(connectCtx); err != nil {
		return fmt.Errorf("waiting for discovery: %w", err)
	}
	defer func() { _ = device.Disconnect() }()

	nameColor := color.New(color.FgGreen, color.Bold)
	_, _ = nameColor.Fprintf(cmd.OutOrStdout(), "connected to %s\n", device.Name())

	sub := measurement.OnChange(true)
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return nil
			}
			printMeasurement(cmd, m)
		}
	}
}

func printMeasurement(cmd *cobra.Command, m gatt.TemperatureMeasurement) {
	unit := "°C"
	if m.Unit == gatt.TemperatureFahrenheit {
		unit = "°F"
	}
	when := ""
	if m.Timestamp != nil {
		when = " at " + fmt.Sprintf("%02d:%02d:%02d", m.Timestamp.Hour, m.Timestamp.Minute, m.Timestamp.Second)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.2f %s%s\n", m.Value.Float64(), unit, when)
}
