package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	"SPXEngine/internal/services/analytics"
	"SPXEngine/pkg/logger"
	"SPXEngine/pkg/markethours"
	"SPXEngine/pkg/util"
)

// TradeReplayUseCase grades a parsed trade against the session's 1m bars.
type TradeReplayUseCase struct {
	bars     domrepo.BarSource
	log      *logger.Logger
	validate *validator.Validate
}

func NewTradeReplayUseCase(bars domrepo.BarSource, log *logger.Logger) *TradeReplayUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &TradeReplayUseCase{bars: bars, log: log, validate: validator.New()}
}

// Validate checks the trade against the accepted contract and exit shapes.
func (uc *TradeReplayUseCase) Validate(trade models.ParsedTrade) error {
	if err := uc.validate.Struct(trade); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid trade: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid trade: %w", err)
	}
	return nil
}

// Evaluate validates trade, loads its session bars and scores it. Only
// validation errors are returned; a failed bar fetch scores with no bars.
func (uc *TradeReplayUseCase) Evaluate(ctx context.Context, trade models.ParsedTrade, pnlPct *float64) (models.TradeEvaluation, error) {
	if err := uc.Validate(trade); err != nil {
		return models.TradeEvaluation{}, err
	}
	return analytics.ScoreTradeReplay(trade, uc.sessionBars(ctx, trade), pnlPct), nil
}

// ScoreWithBars validates trade and scores it against caller-supplied bars.
func (uc *TradeReplayUseCase) ScoreWithBars(trade models.ParsedTrade, bars []models.ChartBar, pnlPct *float64) (models.TradeEvaluation, error) {
	if err := uc.Validate(trade); err != nil {
		return models.TradeEvaluation{}, err
	}
	return analytics.ScoreTradeReplay(trade, bars, pnlPct), nil
}

func (uc *TradeReplayUseCase) sessionBars(ctx context.Context, trade models.ParsedTrade) []models.ChartBar {
	if uc.bars == nil {
		return nil
	}
	entry, ok := util.ParseTime(trade.EntryTimestamp)
	if !ok {
		return nil
	}
	day := markethours.SessionDay(entry)
	bars, err := uc.bars.GetBars(ctx, trade.Contract.Symbol, domrepo.TF1m, day, day.AddDate(0, 0, 1))
	if err != nil {
		if !errors.Is(err, domrepo.ErrNoBars) {
			uc.log.Warn("trade replay bar fetch failed; scoring without bars",
				logger.String("symbol", trade.Contract.Symbol),
				logger.String("session_date", markethours.SessionDate(entry)),
				logger.Error(err),
			)
		}
		return nil
	}
	return bars
}
