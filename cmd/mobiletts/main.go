// Package main provides the mobiletts command-line client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mobiletts/internal/app/session"
	"github.com/osa030/mobiletts/internal/domain/audio"
	"github.com/osa030/mobiletts/internal/infra/config"
	"github.com/osa030/mobiletts/internal/infra/historydb"
	"github.com/osa030/mobiletts/internal/infra/logger"
	"github.com/osa030/mobiletts/internal/infra/prefs"
	"github.com/osa030/mobiletts/internal/infra/ttsapi"
)

var (
	app        = kingpin.New("mobiletts", "Open Mobile TTS command-line client")
	configPath = app.Flag("config", "Path to config file (defaults only when empty)").Envar("MOBILETTS_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// login command
	loginCmd   = app.Command("login", "Store an access token")
	loginToken = loginCmd.Arg("token", "Bearer token issued by the server").Required().String()

	// logout command
	logoutCmd = app.Command("logout", "Forget the stored token")

	// voices command
	voicesCmd = app.Command("voices", "List available voices")

	// health command
	healthCmd = app.Command("health", "Check server health")

	// status command
	statusCmd = app.Command("status", "Show session and storage status")

	// speak command
	speakCmd    = app.Command("speak", "Generate speech from text or a document")
	speakText   = speakCmd.Arg("text", "Text to speak").String()
	speakFile   = speakCmd.Flag("file", "Document to read (PDF, DOCX, TXT)").Short('f').ExistingFile()
	speakVoice  = speakCmd.Flag("voice", "Voice name (default: settings)").String()
	speakSpeed  = speakCmd.Flag("speed", "Speech speed (default: settings)").Float64()
	speakOut    = speakCmd.Flag("out", "Write MP3 to this file").Short('o').String()
	speakTiming = speakCmd.Flag("timing", "Write timing segments as JSON to this file").String()
	speakStream = speakCmd.Flag("stream", "With --file, let the server read the document directly (not saved to history)").Bool()

	// history commands
	historyCmd       = app.Command("history", "Manage generation history")
	historyListCmd   = historyCmd.Command("list", "List history entries").Default()
	historyExportCmd = historyCmd.Command("export", "Export an entry's audio")
	historyExportID  = historyExportCmd.Arg("id", "Entry ID").Required().String()
	historyExportOut = historyExportCmd.Arg("file", "Output MP3 file").Required().String()
	historyDeleteCmd = historyCmd.Command("delete", "Delete an entry")
	historyDeleteID  = historyDeleteCmd.Arg("id", "Entry ID").Required().String()

	// settings commands
	settingsCmd      = app.Command("settings", "Show or change user settings")
	settingsShowCmd  = settingsCmd.Command("show", "Show settings").Default()
	settingsSetCmd   = settingsCmd.Command("set", "Change a setting")
	settingsSetKey   = settingsSetCmd.Arg("key", "defaultVoice, defaultSpeed or autoPlay").Required().String()
	settingsSetValue = settingsSetCmd.Arg("value", "New value").Required().String()
	settingsResetCmd = settingsCmd.Command("reset", "Restore default settings")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command. Using a separate function ensures deferred
// cleanup runs even when returning with an error.
func run(command string) error {
	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	// Initialize logger, command-line flags override config
	loggerConfig := logger.Config{
		Output: cfg.Logging.Output,
		Level:  cfg.Logging.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch command {
	case loginCmd.FullCommand():
		return login(ctx, rt, *loginToken)
	case logoutCmd.FullCommand():
		return logout(ctx, rt)
	case voicesCmd.FullCommand():
		return listVoices(ctx, rt)
	case healthCmd.FullCommand():
		return health(ctx, rt)
	case statusCmd.FullCommand():
		return showStatus(ctx, rt)
	case speakCmd.FullCommand():
		return speak(ctx, rt, speakOptions{
			Text:   *speakText,
			File:   *speakFile,
			Voice:  *speakVoice,
			Speed:  *speakSpeed,
			Out:    *speakOut,
			Timing: *speakTiming,
			Stream: *speakStream,
		})
	case historyListCmd.FullCommand():
		return listHistory(ctx, rt)
	case historyExportCmd.FullCommand():
		return exportHistory(ctx, rt, *historyExportID, *historyExportOut)
	case historyDeleteCmd.FullCommand():
		return deleteHistory(ctx, rt, *historyDeleteID)
	case settingsShowCmd.FullCommand():
		return showSettings(rt)
	case settingsSetCmd.FullCommand():
		return setSetting(rt, *settingsSetKey, *settingsSetValue)
	case settingsResetCmd.FullCommand():
		return resetSettings(rt)
	}
	return errors.Newf("unknown command: %s", command)
}

// runtime bundles the collaborators of one CLI invocation.
type runtime struct {
	cfg     *config.Config
	client  *ttsapi.Client
	db      *historydb.Store
	session *session.Manager
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	client, err := ttsapi.New(ttsapi.Config{
		BaseURL: cfg.Server.URL,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create TTS client")
	}

	db, err := historydb.Open(ctx, historydb.Config{
		Path:       cfg.Storage.Path,
		MaxEntries: cfg.Storage.MaxEntries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}

	mgr, err := session.New(ctx, session.Deps{
		Generator: client,
		History:   db,
		Settings:  prefs.NewFile(cfg.Prefs.Path),
		Tokens:    db.KV(),
		Registry:  audio.NewRegistry(),
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create session")
	}

	// A configured token wins over the stored one for this invocation only.
	if cfg.Auth.Token != "" {
		mgr.Auth().SetToken(cfg.Auth.Token)
	}

	zlog.Debug().Msgf("mobiletts: ready: server=%s db=%s prefs=%s", cfg.Server.URL, cfg.Storage.Path, cfg.Prefs.Path)
	return &runtime{cfg: cfg, client: client, db: db, session: mgr}, nil
}

// Close tears down the session and the database.
func (rt *runtime) Close() {
	rt.session.Close()
	if err := rt.db.Close(); err != nil {
		zlog.Warn().Err(err).Msg("mobiletts: failed to close history database")
	}
}
