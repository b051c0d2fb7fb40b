package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ortholink/callbridge/internal/aggregator"
	"github.com/ortholink/callbridge/internal/api"
	"github.com/ortholink/callbridge/internal/automation"
	"github.com/ortholink/callbridge/internal/backend"
	"github.com/ortholink/callbridge/internal/callmonitor"
	"github.com/ortholink/callbridge/internal/contacts"
	"github.com/ortholink/callbridge/internal/lockfile"
	"github.com/ortholink/callbridge/internal/overlay"
	"github.com/ortholink/callbridge/internal/scheduler"
	"github.com/ortholink/callbridge/internal/sms"
	"github.com/ortholink/callbridge/internal/store"
	"github.com/ortholink/callbridge/internal/summary"
	"github.com/ortholink/callbridge/internal/timer"
	"github.com/ortholink/callbridge/internal/uiauto"
	"github.com/ortholink/callbridge/internal/updates"
	"github.com/ortholink/callbridge/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for callbridge state data
	DefaultStateDir = "/var/lib/callbridge"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "callbridge.db"
)

// Version is the running build's version, overridable at link time.
var Version = "1.0.0"

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping callbridge")
	if err := run(config, flags); err != nil {
		slog.Error("callbridge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("callbridge exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseDSN    string
	BackendURL     string
	BackendKey     string
	APIAddr        string
	ChromeURL      string
	UpdateRepo     string
	SummaryCron    string
	ClinicMapsURL  string
	PaymentLinkURL string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	backendURL  *string
	backendKey  *string
	apiAddr     *string
	chromeURL   *string
	headless    *bool
	updateRepo  *string
	summaryCron *string
}

// initializeLogger sets up structured logging. CALLBRIDGE_DEBUG enables
// debug-level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CALLBRIDGE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("CALLBRIDGE_STATE_DIR"),
		DatabaseDSN:    os.Getenv("DATABASE_URL"),
		BackendURL:     os.Getenv("BACKEND_URL"),
		BackendKey:     os.Getenv("BACKEND_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		ChromeURL:      os.Getenv("CHROME_DEBUGGER_URL"),
		UpdateRepo:     os.Getenv("UPDATE_REPO"),
		SummaryCron:    os.Getenv("SUMMARY_SCHEDULE"),
		ClinicMapsURL:  os.Getenv("CLINIC_MAPS_URL"),
		PaymentLinkURL: os.Getenv("PAYMENT_LINK_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CALLBRIDGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"CALLBRIDGE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseDSN != "",
		"BACKEND_URL", config.BackendURL,
		"BACKEND_API_KEY_SET", config.BackendKey != "",
		"API_ADDR", config.APIAddr,
		"CHROME_DEBUGGER_URL_SET", config.ChromeURL != "",
		"UPDATE_REPO", config.UpdateRepo,
		"SUMMARY_SCHEDULE", config.SummaryCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for callbridge data (overrides $CALLBRIDGE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseDSN, "database DSN for the contact and message store (overrides $DATABASE_URL)"),
		backendURL:  flag.String("backend-url", config.BackendURL, "clinic backend base URL (overrides $BACKEND_URL)"),
		backendKey:  flag.String("backend-api-key", config.BackendKey, "clinic backend API key (overrides $BACKEND_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		chromeURL:   flag.String("chrome-url", config.ChromeURL, "Chrome DevTools URL for chat automation (overrides $CHROME_DEBUGGER_URL)"),
		headless:    flag.Bool("headless", util.ParseBoolEnv("CHROME_HEADLESS", false), "run the automation browser headless"),
		updateRepo:  flag.String("update-repo", config.UpdateRepo, "GitHub owner/repo polled for releases (overrides $UPDATE_REPO)"),
		summaryCron: flag.String("summary-cron", config.SummaryCron, "cron expression for summary refresh (overrides $SUMMARY_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"backendURL", *flags.backendURL,
		"apiAddr", *flags.apiAddr,
		"chromeURL_set", *flags.chromeURL != "",
		"headless", *flags.headless,
		"updateRepo", *flags.updateRepo)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	return os.MkdirAll(stateDir, 0755)
}

// openStore selects the store backend from the DSN.
func openStore(dsn string) (store.Store, error) {
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// quickActions builds the overlay shortcut set. The clinic schedule message
// differs on Sundays, when consultations run at the Kukatpally branch only.
func quickActions(config Config) []overlay.QuickAction {
	mapsURL := config.ClinicMapsURL
	if mapsURL == "" {
		mapsURL = "https://maps.app.goo.gl/ortholink-clinic"
	}
	actions := []overlay.QuickAction{
		{
			ID:    "clinic_details",
			Label: "Clinic details",
			Message: "OrthoLink Clinic, Madhapur. Consultations Mon-Sat 10am to 8pm. " +
				"Directions: " + mapsURL,
			SundayMessage: "OrthoLink Clinic. Sunday consultations at the Kukatpally branch, " +
				"11am to 2pm. Directions: " + mapsURL,
			AutoSend: true,
		},
	}
	if config.PaymentLinkURL != "" {
		actions = append(actions, overlay.QuickAction{
			ID:       "payment_link",
			Label:    "Payment link",
			Message:  "You can complete the consultation payment here: " + config.PaymentLinkURL,
			AutoSend: true,
		})
	}
	return actions
}

// telephonyControl forwards accept/end requests to the phone companion when
// one is configured; without it the overlay actions only log.
type telephonyControl struct {
	baseURL string
	client  *http.Client
}

func (t *telephonyControl) post(ctx context.Context, action string) error {
	if t.baseURL == "" {
		slog.Warn("No telephony companion configured, call action ignored", "action", action)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/calls/"+action, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Error("Telephony companion rejected call action", "action", action, "status", resp.StatusCode)
	}
	return nil
}

func (t *telephonyControl) Accept(ctx context.Context) error { return t.post(ctx, "accept") }
func (t *telephonyControl) End(ctx context.Context) error    { return t.post(ctx, "end") }

func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	var backendOpts []backend.Option
	if *flags.backendURL != "" {
		backendOpts = append(backendOpts, backend.WithBaseURL(*flags.backendURL))
	}
	if *flags.backendKey != "" {
		backendOpts = append(backendOpts, backend.WithAPIKey(*flags.backendKey))
	}
	backendClient, err := backend.NewClient(backendOpts...)
	if err != nil {
		return err
	}

	// Chat automation over a Chrome-hosted session.
	var observerOpts []uiauto.Option
	if *flags.chromeURL != "" {
		observerOpts = append(observerOpts, uiauto.WithDebuggerURL(*flags.chromeURL))
	}
	observerOpts = append(observerOpts, uiauto.WithHeadless(*flags.headless))
	observer := uiauto.NewWebObserver(observerOpts...)
	if err := observer.Start(ctx); err != nil {
		return err
	}
	defer observer.Stop()

	// Direct SMS is optional; without Twilio credentials the fallback opens
	// the desktop composer instead.
	var sender sms.TextSender
	if twilio, err := sms.NewClient(); err != nil {
		slog.Warn("Direct SMS unavailable, composer fallback only", "error", err)
	} else {
		sender = twilio
	}
	fallback := sms.NewService(sender, nil)

	tm := timer.NewSimpleTimer()
	defer tm.Stop()

	controller := automation.NewController(observer, observer, fallback, tm,
		automation.WithMarkers(uiauto.WebMarkers()),
		automation.WithRecorder(st),
	)
	controller.Start(ctx)

	callControl := &telephonyControl{
		baseURL: strings.TrimSuffix(os.Getenv("COMPANION_URL"), "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	machine := overlay.NewMachine(callControl, controller, quickActions(config))

	directory := contacts.NewFailOpen(contacts.NewStoreDirectory(st))
	agg := aggregator.New(backendClient)
	monitor := callmonitor.NewMonitor(agg, directory, machine)

	sched := scheduler.NewScheduler()
	defer sched.Stop()

	summarySvc := summary.NewService(backendClient)
	if err := summarySvc.StartPeriodicRefresh(ctx, sched, *flags.summaryCron); err != nil {
		return err
	}
	defer summarySvc.Stop()

	var checker *updates.Checker
	if *flags.updateRepo != "" {
		owner, repo, ok := strings.Cut(*flags.updateRepo, "/")
		if !ok {
			slog.Warn("Ignoring malformed update repo, expected owner/repo", "value", *flags.updateRepo)
		} else {
			checker, err = updates.NewChecker(
				updates.WithRepo(owner, repo),
				updates.WithCurrentVersion(Version),
			)
			if err != nil {
				return err
			}
		}
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	var checkerIface api.UpdateChecker
	if checker != nil {
		checkerIface = checker
	}
	server := api.NewServer(monitor, machine, summarySvc, checkerIface, st, apiOpts...)
	return server.Run(ctx)
}
