package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nutribot/backend"
	"nutribot/chat"
	"nutribot/config"
	"nutribot/model"
	"nutribot/storage"
	"nutribot/ui"
)

const Version = "0.1.0"

type options struct {
	backendURL string
	dataDir    string
	store      string
	debug      bool
	force      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "nutribot",
		Short:         "Terminal client for the NutriBot nutrition assistant",
		Long:          "NutriBot streams answers from the NutriBot backend, keeps several conversations and grounds them in an uploaded PDF.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.backendURL, "backend", "", "backend base URL (overrides config and NUTRIBOT_BACKEND_URL)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides settings.toml and NUTRIBOT_DATA_DIR)")
	flags.StringVar(&opts.store, "store", "", `storage driver: "sqlite", "bolt" or "file"`)
	flags.BoolVar(&opts.debug, "debug", false, "write a debug log to <data-dir>/debug.log")
	flags.BoolVar(&opts.force, "force", false, "start even if another instance holds the data directory")
	return cmd
}

func loadConfig(opts *options) (*config.Config, error) {
	// Load resolves the user config inside the data directory
	if opts.dataDir != "" {
		if err := os.Setenv("NUTRIBOT_DATA_DIR", opts.dataDir); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.backendURL != "" {
		cfg.BackendURL = opts.backendURL
	}
	if opts.store != "" {
		cfg.StorageDriver = opts.store
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StorageDriver {
	case config.DriverFile:
		return storage.NewFileStore(cfg.StateDir())
	case config.DriverBolt:
		return storage.NewBoltStore(cfg.BoltPath())
	default:
		return storage.NewSQLiteStore(cfg.DatabasePath())
	}
}

func showStartupError(title, message string) error {
	p := tea.NewProgram(ui.NewErrorModal(title, message), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func run(opts *options) error {
	config.Debug = opts.debug

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	closeLog := config.InitDebugLog(cfg.DataDir())
	defer closeLog()
	log := config.Log
	for _, key := range cfg.UnknownKeys {
		color.New(color.FgYellow).Fprintf(os.Stderr, "Warning: unknown config key ignored (%s)\n", key)
		log.Warn().Str("key", key).Msg("unknown config key ignored")
	}
	log.Info().
		Str("version", Version).
		Str("store", cfg.StorageDriver).
		Str("data_dir", cfg.DataDir()).
		Msg("starting")

	// One client per data directory
	lock := storage.NewInstanceLock(cfg.DataDir())
	if !opts.force {
		locked, pid, err := lock.Check()
		if err != nil {
			return fmt.Errorf("failed to check instance lock: %w", err)
		}
		if locked {
			return showStartupError("⚠️  NutriBot Already Running", fmt.Sprintf(
				"Another NutriBot client is using this data directory (PID %d).\n\n"+
					"Close it, point this one at another directory with --data-dir,\n"+
					"or start anyway with --force.",
				pid))
		}
	}
	if err := lock.Acquire(); err != nil {
		return fmt.Errorf("failed to lock data directory: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release instance lock")
		}
	}()

	blobs, err := openBlobStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StorageDriver, err)
	}
	defer blobs.Close()

	store := model.NewStore(model.DefaultGreeting)
	state, err := storage.Load(blobs)
	if err != nil {
		// Keep whatever decoded; the broken document is overwritten on the next change
		log.Warn().Err(err).Msg("saved state partially unreadable")
	}
	store.Restore(state.Snapshot)

	initial, ok := model.LookupModel(cfg.DefaultModel)
	if !ok {
		log.Warn().Str("model", cfg.DefaultModel).Msg("unknown default model, using catalog default")
		initial = model.DefaultModel()
	}
	if state.Model != nil {
		initial = *state.Model
	}
	selection := model.NewSelection(initial)
	grounding := model.NewGroundingHolder(store)

	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithUploadTimeout(cfg.UploadTimeout),
		backend.WithLogger(log),
	)
	if err != nil {
		return err
	}
	log.Debug().Str("url", client.BaseURL()).Msg("backend client ready")

	recovery, err := chat.ParseRecoveryPolicy(cfg.Recovery)
	if err != nil {
		return err
	}
	ctrl := chat.NewController(store, grounding, selection, client, chat.Options{
		TypingDelay: cfg.TypingDelay,
		Recovery:    recovery,
		Logger:      log,
	})

	persister := storage.NewPersister(blobs, store, selection, log)

	app := ui.NewAppView(ui.Deps{
		Store:     store,
		Grounding: grounding,
		Selection: selection,
		Chat:      ctrl,
		Logger:    log,
		Version:   Version,
	})
	p := tea.NewProgram(app, tea.WithAltScreen())

	bridge := ui.NewBridge(store, ctrl)
	go bridge.Run(p)

	_, runErr := p.Run()

	// Stop streaming first so the final partial answers are persisted
	bridge.Stop()
	ctrl.Shutdown()
	if err := persister.Close(); err != nil {
		log.Error().Err(err).Msg("failed to save conversations")
		if runErr == nil {
			runErr = fmt.Errorf("failed to save conversations: %w", err)
		}
	}
	log.Info().Msg("exiting")
	return runErr
}
