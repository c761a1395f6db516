package main

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"

	"docquery/internal/auth"
	"docquery/internal/config"
	"docquery/internal/database"
	"docquery/internal/datadir"
	"docquery/internal/documents"
	"docquery/internal/embedding"
	"docquery/internal/indexstore"
	"docquery/internal/llm"
	"docquery/internal/maintenance"
	"docquery/internal/qa"
	"docquery/internal/vectorindex"
)

// app holds the collaborators shared by the server and the offline commands.
type app struct {
	cfg     *config.Config
	dataDir *datadir.DataDir
	dbPath  string
	logger  *log.Logger

	db        *sql.DB
	auth      *auth.Service
	documents *documents.Store
	ingester  *documents.Ingester
	qa        *qa.Service
	indexes   indexstore.Backend
	scheduler *maintenance.Scheduler
}

// loadConfig resolves the data directory, loads .env files and the
// configuration file. An empty config path means <data_dir>/config.json.
func loadConfig(opts *rootOptions) (*config.Config, *datadir.DataDir, error) {
	dd, err := datadir.New("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := datadir.LoadEnv(dd.Root()); err != nil {
		log.Printf("WARNING: Failed to load .env files: %v", err)
	}

	path := opts.cfgFile
	if path == "" {
		if err := dd.EnsureDirs(); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directories: %w", err)
		}
		path = dd.ConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// The configured data_dir may differ from the one used for .env lookup.
	if cfg.DataDir != "" {
		dd, err = datadir.New(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
	}
	if err := dd.EnsureDirs(); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directories: %w", err)
	}

	if opts.verbose {
		cfg.Debug.VerboseLogging = true
	}
	return cfg, dd, nil
}

// openApp loads the configuration and constructs every collaborator.
func openApp(opts *rootOptions) (*app, error) {
	cfg, dd, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, dataDir: dd, logger: log.Default()}

	a.dbPath = opts.dbPath
	if a.dbPath == "" {
		a.dbPath = cfg.Database.Path
	}
	if a.dbPath == "" {
		a.dbPath = dd.DatabasePath()
	}

	a.db, err = database.Open(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := a.build(); err != nil {
		a.db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build() error {
	cfg := a.cfg

	switch cfg.Index.Backend {
	case config.IndexBackendDir:
		dir := cfg.Index.Dir
		if dir == "" {
			dir = a.dataDir.IndexDir()
		}
		store, err := indexstore.NewDirStore(dir, indexstore.WithLogger(a.logger))
		if err != nil {
			return fmt.Errorf("failed to open index directory: %w", err)
		}
		a.indexes = store
	default:
		a.indexes = indexstore.NewSQLiteStore(a.db, indexstore.WithLogger(a.logger))
	}

	emb, err := embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Timeout:    cfg.Embedding.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	gen, err := llm.New(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Timeout:   cfg.LLM.Timeout(),
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create answer generator: %w", err)
	}

	a.documents = documents.NewStore(a.db)

	qaOpts := qa.DefaultOptions()
	qaOpts.TopK = cfg.QA.TopK
	qaOpts.MaxChunkChars = cfg.QA.MaxChunkChars
	qaOpts.RebuildOnChange = cfg.Index.RebuildOnChange
	qaOpts.Index = vectorindex.Options{GraphMinChunks: cfg.Index.GraphMinChunks}
	a.qa = qa.NewService(a.documents, a.indexes, emb, gen, qaOpts, a.logger)

	ingestOpts := []documents.IngesterOption{documents.WithLogger(a.logger)}
	if cfg.Index.WarmOnIngest {
		ingestOpts = append(ingestOpts, documents.WithWarmer(a.qa))
	}
	extractor := documents.NewExtractor(documents.NewPDFExtractor())
	a.ingester = documents.NewIngester(a.documents, extractor, ingestOpts...)

	users := auth.NewUserStore(a.db, cfg.Auth.BcryptCost)
	tokens := auth.NewTokenStorage(a.db, auth.WithTokenTTL(cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL()))
	a.auth = auth.NewService(users, tokens, a.logger)

	return a.buildScheduler()
}

// buildScheduler registers index eviction unconditionally; token cleanup and
// database maintenance follow the maintenance settings.
func (a *app) buildScheduler() error {
	cfg := a.cfg
	a.scheduler = maintenance.NewScheduler(maintenance.Config{
		Enabled:  true,
		Schedule: cfg.Maintenance.Schedule,
		Database: maintenance.DatabaseConfig{
			VacuumEnabled:      cfg.Maintenance.VacuumEnabled,
			VacuumThreshold:    cfg.Maintenance.VacuumThreshold,
			BackupBeforeVacuum: cfg.Maintenance.BackupBeforeVac,
			OptimizeIndexes:    cfg.Maintenance.OptimizeIndexes,
		},
	}, a.logger)

	eviction := maintenance.NewIndexEvictionTask(a.indexes,
		cfg.Index.InactivityThreshold(), cfg.Index.SweepInterval(), a.logger)
	if err := a.scheduler.RegisterTask(eviction); err != nil {
		return err
	}

	if !cfg.Maintenance.Enabled {
		return nil
	}
	if err := a.scheduler.RegisterTask(maintenance.NewTokenCleanupTask(a.auth.Tokens(), a.logger)); err != nil {
		return err
	}

	// Backups are named after this path and land in <data_dir>/backups.
	backupBase := filepath.Join(a.dataDir.BackupDir(), filepath.Base(a.dbPath))
	dbTask := maintenance.NewDatabaseMaintenanceTask(a.db, backupBase, maintenance.DatabaseConfig{
		VacuumEnabled:      cfg.Maintenance.VacuumEnabled,
		VacuumThreshold:    cfg.Maintenance.VacuumThreshold,
		BackupBeforeVacuum: cfg.Maintenance.BackupBeforeVac,
		OptimizeIndexes:    cfg.Maintenance.OptimizeIndexes,
	}, a.logger)
	return a.scheduler.RegisterTask(dbTask)
}

// Close releases the index backend and the database.
func (a *app) Close() error {
	if a.indexes != nil {
		if err := a.indexes.Close(); err != nil {
			a.logger.Printf("WARNING: Failed to close index store: %v", err)
		}
	}
	return a.db.Close()
}
