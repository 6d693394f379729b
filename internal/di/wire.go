//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "SPXEngine/internal/domain/repository"
	"SPXEngine/internal/usecase"
	"SPXEngine/pkg/config"
	"SPXEngine/pkg/metrics"
	"SPXEngine/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideClickHouseClient,
	ProvideBarStore,
)

var serveSet = wire.NewSet(
	infraSet,
	ProvideRegistry,
	ProvideMetrics,
	wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),
	ProvideCache,
	ProvideReplayTable,
	ProvideMultiTFContext,
	ProvideReplayWriter,
	ProvideRefreshLimiter,
	ProvideOpsHandler,
	ProvideHTTPServer,
	ProvideSnapshotConsumer,
	ProvideApp,
)

// InitializeApp wires the serve command.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(serveSet)
	return nil, nil, nil
}

// InitializeTradeReplay wires only what score-trade needs.
func InitializeTradeReplay(cfg *config.Config) (*usecase.TradeReplayUseCase, func(), error) {
	wire.Build(infraSet, ProvideTradeReplay)
	return nil, nil, nil
}
