package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"stablecoin_go/internal/app"
)

type accountReport struct {
	User            string            `json:"user"`
	Debt            string            `json:"debt"`
	Collateral      map[string]string `json:"collateral"`
	CollateralValue string            `json:"collateral_value_usd,omitempty"`
	HealthFactor    string            `json:"health_factor,omitempty"`
	Error           string            `json:"error,omitempty"`
}

func replayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuilds the ledger from the journal and prints every account",
		RunE:  replayFunc,
	}
}

func replayFunc(c *cobra.Command, _ []string) error {
	configPath, _ := c.Flags().GetString("config")
	bootstrap := app.NewBootstrap(configPath)
	if err := bootstrap.Initialize(); err != nil {
		return err
	}
	defer bootstrap.Shutdown()
	if err := bootstrap.BuildEngine(); err != nil {
		return err
	}

	eng := bootstrap.Engine
	var reports []accountReport
	for _, pos := range eng.Snapshot() {
		r := accountReport{User: pos.User.Hex(), Debt: pos.Debt.Dec(), Collateral: make(map[string]string)}
		for asset, amount := range pos.Collateral {
			r.Collateral[asset.Hex()] = amount.Dec()
		}
		if info, err := eng.AccountInformation(pos.User); err != nil {
			r.Error = err.Error()
		} else {
			r.CollateralValue = info.CollateralValueInUSD.Dec()
		}
		if hf, err := eng.HealthFactor(pos.User); err == nil {
			r.HealthFactor = hf.Dec()
		}
		reports = append(reports, r)
	}

	diffs, err := bootstrap.VerifySnapshot()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		NextSeq       uint64          `json:"next_seq"`
		Accounts      []accountReport `json:"accounts"`
		SnapshotDiffs []string        `json:"snapshot_diffs"`
	}{eng.NextSeq(), reports, diffs})
}
