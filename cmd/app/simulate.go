package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"stablecoin_go/internal/app"
	"stablecoin_go/internal/infra"
)

const defaultLiquidator = "0x000000000000000000000000000000000000c0de"

func simulateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Runs a liquidation scenario against a scratch database",
		RunE:  simulateFunc,
	}
}

func simulateFunc(c *cobra.Command, _ []string) error {
	configPath, _ := c.Flags().GetString("config")

	dir, err := os.MkdirTemp("", "dsc-simulate-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	os.Setenv("DSC_DB_PATH", filepath.Join(dir, "engine.db"))

	bootstrap := app.NewBootstrap(configPath)
	if err := bootstrap.Initialize(); err != nil {
		return err
	}
	defer bootstrap.Shutdown()
	bootstrap.Config.Keeper.Enabled = true
	if bootstrap.Config.Keeper.Liquidator == "" {
		bootstrap.Config.Keeper.Liquidator = defaultLiquidator
	}
	if err := bootstrap.BuildEngine(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context())
	go bootstrap.Sequencer.Run(ctx)
	defer func() {
		cancel()
		<-bootstrap.Sequencer.Done()
	}()

	report, err := bootstrap.Simulate(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Encode(infra.GlobalMetrics.Snapshot())
}
