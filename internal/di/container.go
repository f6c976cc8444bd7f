// Package di wires the application graph with dig.
package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/classify"
	"github.com/sentinelshare/sentinel/internal/command"
	"github.com/sentinelshare/sentinel/internal/config"
	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/engine"
	"github.com/sentinelshare/sentinel/internal/factory"
	"github.com/sentinelshare/sentinel/internal/learning"
	"github.com/sentinelshare/sentinel/internal/ledger"
	"github.com/sentinelshare/sentinel/internal/logging"
	"github.com/sentinelshare/sentinel/internal/rules"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCore(container); err != nil {
		return nil, err
	}

	// Register processing engine
	if err := container.Provide(func(
		cfg *config.Config,
		mailbox core.MailboxSource,
		mailer core.MailSender,
		prefs core.PreferenceStore,
		ruleStore core.RuleStore,
		evaluator *rules.Evaluator,
		blocks *rules.BlockManager,
		parser *command.Parser,
		applier *command.Applier,
		ledgerSvc *ledger.Service,
		logger *zap.Logger,
	) (*engine.Engine, error) {
		lookback, err := cfg.GetDuration("mailbox.lookback")
		if err != nil {
			return nil, fmt.Errorf("invalid mailbox lookback: %w", err)
		}
		pollInterval, err := cfg.GetDuration("mailbox.poll_interval")
		if err != nil {
			return nil, fmt.Errorf("invalid poll interval: %w", err)
		}
		recipient := cfg.GetString("forward.recipient")
		if recipient == "" {
			return nil, fmt.Errorf("forward.recipient must be set")
		}
		return engine.New(mailbox, mailer, prefs, ruleStore, evaluator, blocks, parser, applier, ledgerSvc, engine.Options{
			Recipient:    recipient,
			Lookback:     lookback,
			PollInterval: pollInterval,
		}, logger), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCore registers everything below the engine: stores, mail adapters
// and the domain services. Shared between the daemon and CLI containers.
func provideCore(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewMailFactory); err != nil {
		return err
	}

	// Register primary store
	if err := container.Provide(func(f *factory.StoreFactory) (store.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	// Register the individual ports the primary store serves
	if err := container.Provide(func(s store.Store) core.PreferenceStore { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s store.Store) core.RuleStore { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s store.Store) core.BlockStore { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s store.Store) core.CandidateStore { return s }); err != nil {
		return err
	}

	// Register the ledger backend, which may live outside the primary store
	if err := container.Provide(func(f *factory.StoreFactory, s store.Store) (core.LedgerStore, error) {
		return f.CreateLedger(s)
	}); err != nil {
		return err
	}

	// Register mail adapters
	if err := container.Provide(func(f *factory.MailFactory) (core.MailboxSource, error) {
		return f.CreateMailboxSource()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.MailFactory) (core.MailSender, error) {
		return f.CreateMailSender()
	}); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *classify.Classifier {
		return classify.New(
			cfg.GetStringSlice("classifier.extra_keywords"),
			cfg.GetStringSlice("classifier.extra_merchants"),
			logger,
		)
	}); err != nil {
		return err
	}

	// Register block manager
	if err := container.Provide(func(cfg *config.Config, blocks core.BlockStore, logger *zap.Logger) (*rules.BlockManager, error) {
		ttl, err := cfg.GetDuration("blocks.ttl")
		if err != nil {
			return nil, fmt.Errorf("invalid block ttl: %w", err)
		}
		return rules.NewBlockManager(blocks, ttl, logger), nil
	}); err != nil {
		return err
	}

	// Register evaluator
	if err := container.Provide(rules.NewEvaluator); err != nil {
		return err
	}

	// Register reply command parser and applier
	if err := container.Provide(command.NewParser); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		prefs core.PreferenceStore,
		blocks *rules.BlockManager,
		mailer core.MailSender,
		logger *zap.Logger,
	) *command.Applier {
		return command.NewApplier(prefs, blocks, mailer, cfg.GetString("forward.recipient"), logger)
	}); err != nil {
		return err
	}

	// Register ledger service
	if err := container.Provide(ledger.NewService); err != nil {
		return err
	}

	// Register learning engine
	if err := container.Provide(func(
		cfg *config.Config,
		ledgerStore core.LedgerStore,
		ruleStore core.RuleStore,
		candidates core.CandidateStore,
		logger *zap.Logger,
	) *learning.Engine {
		return learning.NewEngine(ledgerStore, ruleStore, candidates, cfg.GetInt("learning.min_matches"), logger)
	}); err != nil {
		return err
	}

	return nil
}
