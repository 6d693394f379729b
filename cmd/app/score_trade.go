package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SPXEngine/internal/di"
	"SPXEngine/internal/domain/models"
	"SPXEngine/internal/usecase"
	"SPXEngine/pkg/config"
	applogger "SPXEngine/pkg/logger"
)

var (
	tradePath string
	barsPath  string
	pnlPct    float64
)

var scoreTradeCmd = &cobra.Command{
	Use:   "score-trade",
	Short: "Score a closed trade against the session's 1m bars",
	Long: `Reads a parsed trade from JSON and prints its evaluation.

With --bars the 1m bars are read from a JSON array of {time,open,high,low,close,volume}
and no database is touched. Without it the bars for the entry's trading day are
loaded from ClickHouse.

Examples:
  spxengine score-trade --trade trade.json
  spxengine score-trade --trade trade.json --bars bars.json --pnl 42.5`,
	RunE: runScoreTrade,
}

func init() {
	rootCmd.AddCommand(scoreTradeCmd)
	scoreTradeCmd.Flags().StringVar(&tradePath, "trade", "", "Parsed trade JSON file")
	scoreTradeCmd.Flags().StringVar(&barsPath, "bars", "", "Optional 1m bars JSON file")
	scoreTradeCmd.Flags().Float64Var(&pnlPct, "pnl", 0, "Realized P&L percent, if known")
	_ = scoreTradeCmd.MarkFlagRequired("trade")
}

func runScoreTrade(cmd *cobra.Command, _ []string) error {
	var trade models.ParsedTrade
	if err := readJSON(tradePath, &trade); err != nil {
		return fmt.Errorf("read trade: %w", err)
	}

	var pnl *float64
	if cmd.Flags().Changed("pnl") {
		v := pnlPct
		pnl = &v
	}

	var (
		eval models.TradeEvaluation
		err  error
	)
	if barsPath != "" {
		var bars []models.ChartBar
		if err := readJSON(barsPath, &bars); err != nil {
			return fmt.Errorf("read bars: %w", err)
		}
		eval, err = usecase.NewTradeReplayUseCase(nil, applogger.Nop()).ScoreWithBars(trade, bars, pnl)
	} else {
		eval, err = scoreFromStore(cmd.Context(), trade, pnl)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(eval)
}

func scoreFromStore(ctx context.Context, trade models.ParsedTrade, pnl *float64) (models.TradeEvaluation, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return models.TradeEvaluation{}, err
	}
	uc, cleanup, err := di.InitializeTradeReplay(cfg)
	if err != nil {
		return models.TradeEvaluation{}, fmt.Errorf("trade replay initialization failed: %w", err)
	}
	defer cleanup()

	if ctx == nil {
		ctx = context.Background()
	}
	return uc.Evaluate(ctx, trade, pnl)
}

func readJSON(path string, dest interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}
