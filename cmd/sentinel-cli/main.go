package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/classify"
	"github.com/sentinelshare/sentinel/internal/config"
	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/factory"
	"github.com/sentinelshare/sentinel/internal/learning"
	"github.com/sentinelshare/sentinel/internal/logging"
	"github.com/sentinelshare/sentinel/internal/rules"
	"github.com/sentinelshare/sentinel/internal/textutil"
)

var (
	// Store flags
	storeType  = flag.String("store", "memory", "Store backend (memory, sqlite, mysql)")
	sqlitePath = flag.String("sqlite-path", "/data/sentinel.db", "Path to the SQLite database")
	mysqlDSN   = flag.String("mysql-dsn", "", "MySQL DSN")

	// Classifier flags
	extraKeywords  = flag.String("keywords", "", "Comma-separated extra receipt keywords")
	extraMerchants = flag.String("merchants", "", "Comma-separated extra known merchants")

	// Learning flags
	scan       = flag.Bool("scan", false, "Scan ledger history for rule candidates")
	lookback   = flag.Duration("lookback", 168*time.Hour, "Learning scan lookback window")
	minMatches = flag.Int("min-matches", 2, "Minimum ignored messages before proposing a rule")
	approve    = flag.Int64("approve", 0, "Approve the candidate with this id")
	category   = flag.String("category", "other", "Category for an approved candidate")
	dismiss    = flag.Int64("dismiss", 0, "Dismiss the candidate with this id")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	// Open the configured store
	storeFactory := factory.NewStoreFactory(cfg, logger)
	primary, err := storeFactory.CreateStore()
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeIfCloser(primary, logger)

	ctx := context.Background()

	switch {
	case *scan, *approve != 0, *dismiss != 0:
		eng, ledgerStore, err := newLearningEngine(cfg, storeFactory, primary, logger)
		if err != nil {
			logger.Fatal("Failed to open ledger", zap.Error(err))
		}
		if ledgerStore != core.LedgerStore(primary) {
			defer closeIfCloser(ledgerStore, logger)
		}
		switch {
		case *scan:
			runScan(ctx, eng, logger)
		case *approve != 0:
			runApprove(ctx, eng, *approve, *category, logger)
		default:
			runDismiss(ctx, eng, *dismiss, logger)
		}
	default:
		runDecide(ctx, cfg, primary, logger)
	}
}

// newLearningEngine builds the learning engine over the configured ledger
// backend. The daemon may keep the ledger in Redis rather than the primary
// store; scanning the primary in that case would read no history at all. The
// returned ledger must be closed by the caller when it is distinct from the
// primary store.
func newLearningEngine(cfg *config.Config, storeFactory *factory.StoreFactory, primary store.Store, logger *zap.Logger) (*learning.Engine, core.LedgerStore, error) {
	ledgerStore, err := storeFactory.CreateLedger(primary)
	if err != nil {
		return nil, nil, err
	}
	eng := learning.NewEngine(ledgerStore, primary, primary, cfg.GetInt("learning.min_matches"), logger)
	return eng, ledgerStore, nil
}

// runDecide reads one RFC 822 message and prints the decision trace.
func runDecide(ctx context.Context, cfg *config.Config, primary store.Store, logger *zap.Logger) {
	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	parsed, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	bodyBytes, err := io.ReadAll(parsed.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}

	msg := &core.Message{
		ID:         parsed.Header.Get("Message-ID"),
		From:       parsed.Header.Get("From"),
		To:         strings.Split(parsed.Header.Get("To"), ","),
		Subject:    parsed.Header.Get("Subject"),
		Body:       textutil.Normalize(string(bodyBytes), 0),
		ReceivedAt: time.Now(),
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", msg.From)
	fmt.Printf("Subject: %s\n", msg.Subject)
	fmt.Printf("Body length: %d bytes\n", len(msg.Body))

	classifier := newClassifier(cfg, logger)
	blocks := newBlockManager(cfg, primary, logger)
	evaluator := rules.NewEvaluator(classifier, blocks, logger)

	state, err := loadState(ctx, primary)
	if err != nil {
		logger.Fatal("Failed to load rule state", zap.Error(err))
	}

	startTime := time.Now()
	verdict, err := evaluator.Decide(ctx, msg, state)
	if err != nil {
		logger.Fatal("Failed to evaluate message", zap.Error(err))
	}

	fmt.Printf("\n=== Decision ===\n")
	fmt.Printf("Decision: %s\n", verdict.Decision)
	fmt.Printf("Category: %s\n", verdict.Category)
	fmt.Printf("Reason: %s\n", verdict.Reason)
	if verdict.Amount > 0 {
		fmt.Printf("Amount: $%.2f\n", verdict.Amount)
	}
	fmt.Printf("Receipt confidence: %d\n", classifier.Confidence(msg))
	fmt.Printf("Processing time: %v\n", time.Since(startTime))
}

func runScan(ctx context.Context, eng *learning.Engine, logger *zap.Logger) {
	created, err := eng.Scan(ctx, *lookback)
	if err != nil {
		logger.Fatal("Scan failed", zap.Error(err))
	}

	pending, err := eng.Pending(ctx)
	if err != nil {
		logger.Fatal("Failed to list candidates", zap.Error(err))
	}

	fmt.Printf("\n=== Scan ===\n")
	fmt.Printf("New candidates: %d\n", len(created))
	fmt.Printf("Pending candidates: %d\n", len(pending))
	for _, c := range pending {
		fmt.Printf("  [%d] %s (%d matches, confidence %.2f) e.g. %q\n",
			c.ID, c.Sender, c.Matches, c.Confidence, c.ExampleSubject)
	}
}

func runApprove(ctx context.Context, eng *learning.Engine, id int64, category string, logger *zap.Logger) {
	rule, err := eng.Approve(ctx, id, category)
	if err != nil {
		logger.Fatal("Approve failed", zap.Error(err), zap.Int64("candidate_id", id))
	}
	fmt.Printf("Created rule %d for sender %s (category %s)\n", rule.ID, rule.SenderPattern, rule.Category)
}

func runDismiss(ctx context.Context, eng *learning.Engine, id int64, logger *zap.Logger) {
	if err := eng.Ignore(ctx, id); err != nil {
		logger.Fatal("Dismiss failed", zap.Error(err), zap.Int64("candidate_id", id))
	}
	fmt.Printf("Dismissed candidate %d\n", id)
}

func loadState(ctx context.Context, primary store.Store) (*rules.State, error) {
	prefs, err := primary.Preferences(ctx, core.GlobalScope)
	if err != nil {
		return nil, err
	}
	manual, err := primary.ManualRules(ctx)
	if err != nil {
		return nil, err
	}
	category, err := primary.CategoryRules(ctx)
	if err != nil {
		return nil, err
	}
	return &rules.State{Prefs: prefs, ManualRules: manual, CategoryRules: category}, nil
}

func newClassifier(cfg *config.Config, logger *zap.Logger) *classify.Classifier {
	return classify.New(
		cfg.GetStringSlice("classifier.extra_keywords"),
		cfg.GetStringSlice("classifier.extra_merchants"),
		logger,
	)
}

func newBlockManager(cfg *config.Config, blocks core.BlockStore, logger *zap.Logger) *rules.BlockManager {
	ttl, err := cfg.GetDuration("blocks.ttl")
	if err != nil {
		ttl = rules.DefaultBlockTTL
	}
	return rules.NewBlockManager(blocks, ttl, logger)
}

func closeIfCloser(target any, logger *zap.Logger) {
	if closer, ok := target.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("store.type", *storeType)
	v.Set("store.sqlite_path", *sqlitePath)
	if *mysqlDSN != "" {
		v.Set("store.mysql_dsn", *mysqlDSN)
	}

	v.Set("learning.min_matches", *minMatches)

	v.Set("classifier.extra_keywords", splitList(*extraKeywords))
	v.Set("classifier.extra_merchants", splitList(*extraMerchants))

	return config.NewFromViper(v)
}

func splitList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
