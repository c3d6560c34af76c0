package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/app/subscription"
	"github.com/fardannozami/healthsync/internal/app/usecase"
	"github.com/fardannozami/healthsync/internal/config"
	"github.com/fardannozami/healthsync/internal/domain"
	"github.com/fardannozami/healthsync/internal/infra/auth"
	"github.com/fardannozami/healthsync/internal/infra/diskv"
	"github.com/fardannozami/healthsync/internal/infra/sqlite"
	"github.com/fardannozami/healthsync/internal/infra/ws"
	"github.com/fardannozami/healthsync/internal/logging"
)

var (
	cfg      config.Config
	logger   *zap.Logger
	identity string
	verbose  bool
	app      *services
)

var rootCmd = &cobra.Command{
	Use:   "healthsync",
	Short: "Local-first health tracker with remote sync",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg = config.Load()
		if identity != "" {
			cfg.Identity = identity
		}
		if verbose {
			cfg.LogLevel = "debug"
		}

		// 2. Logger
		var err error
		logger, err = logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		app, err = newServices(cmd.Context(), cfg, logger)
		return err
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "identity to sign in as (overrides HEALTHSYNC_IDENTITY)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		serveCmd,
		pullCmd,
		summaryCmd,
		exportCmd,
		importCmd,
		wipeCmd,
		logMealCmd,
		logWeightCmd,
		takeDoseCmd,
	)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())

	// Flush pending writes even when the command failed.
	if app != nil {
		app.close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services holds the wired components shared by every command.
type services struct {
	db         *sql.DB
	docs       *sqlite.DocumentStore
	remote     domain.RemoteStore
	store      *store.Store
	identity   *usecase.Identity
	registry   *subscription.Registry
	gateway    *usecase.MutationGateway
	controller *usecase.SyncController
	auth       *auth.Static
	session    *usecase.Session
	log        *zap.Logger
}

func newServices(ctx context.Context, cfg config.Config, logger *zap.Logger) (*services, error) {
	// 3. Database & Remote Store
	// Enable WAL mode and busy timeout to avoid "database is locked" errors
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.SQLitePath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	docs := sqlite.NewDocumentStore(db, cfg.PollInterval, logger)
	if err := docs.InitTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}

	var remote domain.RemoteStore = docs
	if cfg.WSURL != "" {
		remote = ws.NewRemote(docs, ws.NewFeed(cfg.WSURL, logger))
	}

	// 4. Local Store
	st := store.New(diskv.NewPersister(cfg.StateDir), logger)
	st.Open()

	// 5. Sync Core
	rt := &services{
		db:       db,
		docs:     docs,
		remote:   remote,
		store:    st,
		identity: &usecase.Identity{},
		registry: subscription.NewRegistry(logger),
		auth:     auth.NewStatic(cfg.Identity),
		log:      logger,
	}
	rt.gateway = usecase.NewMutationGateway(st, remote, rt.identity, logger)
	rt.controller = usecase.NewSyncController(st, remote, rt.registry, rt.identity, rt.gateway, logger)
	rt.session = usecase.NewSession(rt.auth, rt.controller, logger)

	// 6. Sign In
	// Without an identity the CLI works on the local snapshot only.
	if cfg.Identity != "" {
		rt.session.Start(ctx)
	}
	return rt, nil
}

func (rt *services) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.gateway.Drain(ctx); err != nil {
		rt.log.Warn("pending writes not flushed", zap.Error(err))
	}
	if err := rt.session.Close(); err != nil {
		rt.log.Warn("close session", zap.Error(err))
	}
	if err := rt.db.Close(); err != nil {
		rt.log.Warn("close database", zap.Error(err))
	}
}
