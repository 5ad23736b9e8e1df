package pour

import (
	"errors"
	"fmt"

	"github.com/entrhq/clippypour/pkg/browser/playwright"
	"github.com/entrhq/clippypour/pkg/browser/rod"
	"github.com/entrhq/clippypour/pkg/browser/static"
	"github.com/entrhq/clippypour/pkg/config"
	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/history"
	"github.com/entrhq/clippypour/pkg/llm"
	"github.com/entrhq/clippypour/pkg/llm/openai"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/mapping"
	"github.com/entrhq/clippypour/pkg/matcher"
	"github.com/entrhq/clippypour/pkg/page"
	"github.com/entrhq/clippypour/pkg/report"
	"github.com/entrhq/clippypour/pkg/template"
	"github.com/entrhq/clippypour/pkg/types"
)

// NewDriver starts the page driver named in cfg.Browser.
func NewDriver(cfg config.BrowserConfig, logger *logging.Logger) (page.Driver, error) {
	switch cfg.Driver {
	case config.DriverPlaywright, "":
		d, err := playwright.NewDriver(playwright.Options{
			Headless:    cfg.Headless,
			Timeout:     float64(cfg.Timeout.Milliseconds()),
			MaxPages:    cfg.MaxPages,
			SkipInstall: cfg.SkipInstall,
			Logger:      logger.With("playwright"),
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverRod:
		d, err := rod.NewDriver(rod.Options{
			RemoteURL: cfg.RemoteURL,
			Headless:  cfg.Headless,
			Timeout:   cfg.Timeout,
			Logger:    logger.With("rod"),
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverStatic:
		return static.NewDriver(static.WithLogger(logger.With("static"))), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// NewProvider returns the LLM provider cfg enables, or nil when the LLM is
// disabled or has no key.
func NewProvider(cfg *config.Config, logger *logging.Logger) llm.Provider {
	if !cfg.LLM.Enabled || cfg.LLM.APIKey == "" {
		return nil
	}
	opts := []openai.ProviderOption{openai.WithModel(cfg.LLM.Model)}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(cfg.LLM.Timeout))
	}
	provider, err := openai.NewProvider(cfg.LLM.APIKey, opts...)
	if err != nil {
		logger.Warnf("LLM disabled: %v", err)
		return nil
	}
	return provider
}

// NewMatcher builds the semantic matcher chain from cfg: the offline
// heuristic when enabled, then the LLM over provider when it is non-nil.
// The result may be unavailable, which disables semantic alignment.
func NewMatcher(cfg *config.Config, provider llm.Provider, logger *logging.Logger) mapping.SemanticMatcher {
	var chain mapping.Chain
	if cfg.Mapping.Heuristic {
		chain = append(chain, matcher.NewHeuristic())
	}
	if provider != nil {
		chain = append(chain, matcher.NewLLM(provider,
			matcher.WithSegmentTokens(cfg.LLM.SegmentTokens),
			matcher.WithLogger(logger.With("matcher"))))
	}
	if len(chain) == 0 {
		return mapping.NoMatcher{}
	}
	return chain
}

// New assembles a Service from cfg over driver: analyzer, mapper with the
// configured matcher chain, orchestrator, and the storage cfg enables.
// Close on the service releases the stores but not the driver.
func New(cfg *config.Config, driver page.Driver, logger *logging.Logger, observer fill.Observer) (*Service, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	mode, err := fill.ParseMode(cfg.Fill.Mode)
	if err != nil {
		return nil, err
	}

	provider := NewProvider(cfg, logger)

	analyzerOpts := []form.Option{form.WithLogger(logger.With("analyzer"))}
	if provider != nil && cfg.LLM.DescribeForms {
		analyzerOpts = append(analyzerOpts, form.WithDescriber(matcher.NewDescriber(provider, logger.With("describer"))))
	}
	analyzer := form.NewAnalyzer(driver, analyzerOpts...)
	mapper := mapping.NewMapper(
		mapping.WithMatcher(NewMatcher(cfg, provider, logger)),
		mapping.WithThreshold(cfg.Mapping.Threshold),
		mapping.WithLogger(logger.With("mapper")),
	)

	orchOpts := []fill.Option{
		fill.WithReader(driver),
		fill.WithRegistry(fill.NewRegistry(cfg.Fill.KeepFinished)),
		fill.WithRetryLimit(cfg.Fill.RetryLimit),
		fill.WithRetryDelay(cfg.Fill.RetryDelay),
		fill.WithPacing(cfg.Fill.Pacing),
		fill.WithLogger(logger.With("fill")),
	}
	if observer != nil {
		orchOpts = append(orchOpts, fill.WithObserver(observer))
	}
	orch := fill.NewOrchestrator(analyzer, mapper, driver, orchOpts...)

	opts := []Option{
		WithDefaults(mode, cfg.Fill.Verify),
		WithSubmit(cfg.Fill.Submit),
		WithFillTimeout(cfg.Server.FillTimeout),
		WithLogger(logger.With("pour")),
	}

	if cfg.Storage.UseTemplates || cfg.Storage.SaveTemplates {
		path, err := cfg.TemplatesPath()
		if err != nil {
			return nil, err
		}
		store, err := template.NewStore(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTemplates(store, cfg.Storage.UseTemplates, cfg.Storage.SaveTemplates))
	}

	if cfg.Storage.Profiles {
		path, err := cfg.ProfilesPath()
		if err != nil {
			return nil, err
		}
		store, err := template.NewProfileStore(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithProfiles(store))
	}

	var closers []func() error
	if cfg.Storage.History {
		path, err := cfg.HistoryPath()
		if err != nil {
			return nil, err
		}
		h, err := history.Open(path)
		if err != nil {
			return nil, err
		}
		closers = append(closers, h.Close)
		opts = append(opts, WithHistory(h))
	}

	if cfg.Storage.Artifacts {
		dir, err := cfg.ArtifactsDir()
		if err != nil {
			return nil, errors.Join(err, closeAll(closers))
		}
		opts = append(opts, WithArtifacts(report.NewArtifactWriter(dir)))
	}

	svc := NewService(driver, analyzer, orch, opts...)
	svc.closers = closers
	return svc, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogEvents returns an observer that logs session events at debug level.
func LogEvents(logger *logging.Logger) fill.Observer {
	return func(e *types.FillEvent) {
		switch e.Type {
		case types.EventTypeStateChange:
			logger.Debugf("Session %s: %s -> %s", e.SessionID, e.Previous, e.Status)
		case types.EventTypeFieldRetry:
			logger.Debugf("Session %s: retry %d of %s (%s)", e.SessionID, e.RetryCount, e.Selector, e.Reason)
		case types.EventTypeAttemptRecorded:
			logger.Debugf("Session %s: %s %s", e.SessionID, e.Selector, e.Outcome)
		default:
			logger.Debugf("Session %s: %s", e.SessionID, e.Type)
		}
	}
}
