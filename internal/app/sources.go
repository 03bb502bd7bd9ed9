package app

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"streak-alerts/internal/config"
	"streak-alerts/internal/fetcher"
	"streak-alerts/internal/normalize"
	"streak-alerts/internal/resolver"
)

type sourceFactory func(cfg *config.Config, http fetcher.HTTPOptions, logger zerolog.Logger) resolver.Source

// registry maps sources.order names to an adapter paired with its normalizer chain.
var registry = map[string]sourceFactory{
	config.SourceYahooChart: func(cfg *config.Config, http fetcher.HTTPOptions, logger zerolog.Logger) resolver.Source {
		http.BaseURL = cfg.Sources.Yahoo.BaseURL
		return resolver.Source{
			Adapter:    fetcher.NewYahooChart(fetcher.YahooOptions{HTTPOptions: http}, logger),
			Normalizer: normalize.NewChain(logger, normalize.SingleLevelTable{}),
		}
	},
	config.SourceYahooDownload: func(cfg *config.Config, http fetcher.HTTPOptions, logger zerolog.Logger) resolver.Source {
		http.BaseURL = cfg.Sources.Yahoo.BaseURL
		return resolver.Source{
			Adapter: fetcher.NewYahooDownload(fetcher.YahooOptions{HTTPOptions: http}, logger),
			Normalizer: normalize.NewChain(logger,
				normalize.TwoLevelTable{Instrument: cfg.Monitor.Symbol},
				normalize.SingleLevelTable{},
			),
		}
	},
	config.SourceTradingEconomics: func(cfg *config.Config, http fetcher.HTTPOptions, logger zerolog.Logger) resolver.Source {
		te := cfg.Sources.TradingEcon
		http.BaseURL = te.BaseURL
		return resolver.Source{
			Adapter: fetcher.NewTradingEconomics(fetcher.TradingEconomicsOptions{
				HTTPOptions:  http,
				Key:          te.Key,
				MarketSymbol: te.MarketSymbol,
				Country:      te.Country,
				Indicator:    te.Indicator,
			}, logger),
			Normalizer: normalize.NewChain(logger, normalize.NestedJSON{}),
		}
	},
	config.SourceEastmoney: func(cfg *config.Config, http fetcher.HTTPOptions, logger zerolog.Logger) resolver.Source {
		http.BaseURL = cfg.Sources.Eastmoney.BaseURL
		return resolver.Source{
			Adapter:    fetcher.NewEastmoney(fetcher.EastmoneyOptions{HTTPOptions: http, SecID: cfg.Sources.Eastmoney.SecID}, logger),
			Normalizer: normalize.NewChain(logger, normalize.DelimitedRecord{}),
		}
	},
	config.SourceInvesting: func(cfg *config.Config, http fetcher.HTTPOptions, logger zerolog.Logger) resolver.Source {
		http.BaseURL = cfg.Sources.Investing.URL
		http.Timeout = cfg.Sources.Investing.Timeout
		return resolver.Source{
			Adapter:    fetcher.NewInvesting(fetcher.InvestingOptions{HTTPOptions: http}, logger),
			Normalizer: normalize.NewChain(logger, normalize.SingleLevelTable{}, normalize.LooseTable{}),
		}
	},
}

// buildSources returns the resolver's ordered sources. An explicit override URL
// replaces the configured order with a single JSON endpoint.
func (a *App) buildSources() ([]resolver.Source, error) {
	http := fetcher.HTTPOptions{
		Timeout:   a.Config.Sources.RequestTimeout,
		UserAgent: a.Config.Sources.UserAgent,
	}

	if url := a.Config.Sources.OverrideURL; url != "" {
		a.Logger.Info().Str("source", fetcher.EndpointName).Msg("source override configured; ignoring sources.order")
		return []resolver.Source{{
			Adapter:    fetcher.NewEndpoint(url, http, a.Logger),
			Normalizer: normalize.NewChain(a.Logger, normalize.NestedJSON{}),
		}}, nil
	}

	order := a.Config.SourceOrder()
	if unknown := lo.Reject(order, func(name string, _ int) bool { _, ok := registry[name]; return ok }); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown sources: %v", unknown)
	}
	return lo.Map(order, func(name string, _ int) resolver.Source {
		return registry[name](a.Config, http, a.Logger)
	}), nil
}
