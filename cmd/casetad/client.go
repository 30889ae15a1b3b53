package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/caseta-leap/internal/caseta"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/logging"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/mtls"
)

// connectTimeout bounds the initial bridge connection for one-shot verbs.
const connectTimeout = 30 * time.Second

// withBridge loads config, connects to the Smart Bridge, runs fn, and
// closes the connection. Shared plumbing for the one-shot verbs.
func withBridge(fn func(*caseta.Bridge) error) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tlsCfg, err := mtls.Load(cfg.Bridge)
	if err != nil {
		return fmt.Errorf("loading bridge certificates: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, connectTimeout)
	defer timeoutCancel()

	bridge, err := caseta.Connect(ctx, caseta.Config{
		Host:   cfg.Bridge.Host,
		Port:   cfg.Bridge.Port,
		TLS:    tlsCfg,
		Logger: logging.New(cfg.Logging, version).With("component", "caseta"),
	})
	if err != nil {
		return fmt.Errorf("connecting to bridge: %w", err)
	}
	defer bridge.Close()

	return fn(bridge)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var devicesDomainFlag string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices known to the bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBridge(func(b *caseta.Bridge) error {
			var devices []caseta.Device
			if devicesDomainFlag != "" {
				devices = b.DevicesByDomain(devicesDomainFlag)
			} else {
				devices = b.Devices()
			}
			return printJSON(devices)
		})
	},
}

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List programmed scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBridge(func(b *caseta.Bridge) error {
			return printJSON(b.Scenes())
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <device-id> <level>",
	Short: "Set a device's zone to a level (0-100)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("level must be an integer 0-100: %q", args[1])
		}
		return withBridge(func(b *caseta.Bridge) error {
			return b.SetValue(args[0], level)
		})
	},
}

var onCmd = &cobra.Command{
	Use:   "on <device-id>",
	Short: "Turn a device fully on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBridge(func(b *caseta.Bridge) error {
			return b.TurnOn(args[0])
		})
	},
}

var offCmd = &cobra.Command{
	Use:   "off <device-id>",
	Short: "Turn a device off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBridge(func(b *caseta.Bridge) error {
			return b.TurnOff(args[0])
		})
	},
}

var sceneCmd = &cobra.Command{
	Use:   "scene <scene-id>",
	Short: "Activate a programmed scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBridge(func(b *caseta.Bridge) error {
			return b.ActivateScene(args[0])
		})
	},
}

func init() {
	devicesCmd.Flags().StringVar(&devicesDomainFlag, "domain", "",
		"filter by domain (light, switch, cover, sensor)")
}
