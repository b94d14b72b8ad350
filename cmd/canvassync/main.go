// CanvasFileSync mirrors the files of your Canvas courses into a local
// directory, downloading only what changed since the last sync.
//
// Sub-commands:
//
//	canvassync sync [flags]    Sync once (default)
//	canvassync watch [flags]   Sync periodically and serve metrics
//	canvassync status [flags]  Show what the snapshot records
//	canvassync login           Save a Canvas domain and access token
//	canvassync logout          Delete the saved token
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/kkysen/CanvasFileSync/internal/canvas"
	"github.com/kkysen/CanvasFileSync/internal/config"
	"github.com/kkysen/CanvasFileSync/internal/ignore"
	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/internal/metrics"
	"github.com/kkysen/CanvasFileSync/internal/mirror"
	"github.com/kkysen/CanvasFileSync/internal/snapshot"
	"github.com/kkysen/CanvasFileSync/internal/source"
	"github.com/kkysen/CanvasFileSync/pkg/tree"
)

func main() {
	args := os.Args[1:]
	cmd := "sync"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "sync":
		err = cmdSync(args)
	case "watch":
		err = cmdWatch(args)
	case "status":
		err = cmdStatus(args)
	case "login":
		err = cmdLogin(args)
	case "logout":
		err = cmdLogout(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q. Commands: sync, watch, status, login, logout\n", cmd)
		os.Exit(2)
	}

	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the flags shared by sync, watch and status on top of
// the loaded configuration.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "Config file (default <dir>/"+config.FileName+")")
	dir := fs.String("dir", "", "Mirror directory (default <Documents>/CanvasFileSync)")
	skipGit := fs.Bool("skip-git", false, "Do not version the mirror with git")
	concurrency := fs.Int("concurrency", 0, "Simultaneous downloads")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dir != "" {
		os.Setenv("CANVAS_DIR", *dir)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *skipGit {
		cfg.SkipGit = true
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if cfg.Domain == "" || cfg.AccessToken == "" {
		tf, err := canvas.LoadToken(canvas.TokenFilePath())
		if err != nil {
			return nil, fmt.Errorf("load saved token: %w", err)
		}
		if tf != nil {
			if cfg.Domain == "" {
				cfg.Domain = tf.Domain
			}
			if cfg.AccessToken == "" && tf.Domain == cfg.Domain {
				cfg.AccessToken = tf.Token
			}
		}
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (snapshot.Store, func(), error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotPostgres:
		s, err := snapshot.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Domain)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return snapshot.NewFileStore(cfg.Dir), func() {}, nil
	}
}

// newSyncer wires the Canvas client, the byte source, the snapshot store,
// the ignore rules and the git repository into a Syncer.
func newSyncer(ctx context.Context, cfg *config.Config) (*mirror.Syncer, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create mirror directory: %w", err)
	}

	var repo *mirror.Repo
	if !cfg.SkipGit {
		r, err := mirror.OpenRepo(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		repo = r
	}

	filter, err := ignore.Load(cfg.Dir, cfg.Ignore)
	if err != nil {
		return nil, nil, err
	}
	logging.Debug("ignore rules loaded", logging.Int("patterns", filter.Len()))

	client := canvas.New(canvas.Config{Domain: cfg.Domain, Token: cfg.AccessToken})
	src, err := source.NewFromConfig(ctx, cfg.Source, client)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	logging.Info("CanvasFileSync",
		logging.String("domain", cfg.Domain),
		logging.String("dir", cfg.Dir),
		logging.String("source", cfg.Source.Backend),
		logging.String("snapshot", cfg.SnapshotBackend),
		logging.Bool("git", repo != nil))

	return mirror.New(client, store, src, mirror.Options{
		Root:        cfg.Dir,
		Filter:      filter,
		Concurrency: cfg.Concurrency,
		Repo:        repo,
	}), closeStore, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdSync(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("sync", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	s, closeStore, err := newSyncer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := s.Sync(ctx)
	printReport(report)
	return err
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", 0, "Time between syncs (default from SYNC_INTERVAL or 30m)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *interval > 0 {
		cfg.Interval = *interval
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, closeStore, err := newSyncer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logging.Info("metrics server listening", logging.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	logging.Info("watching", logging.Duration("interval", cfg.Interval))
	err = s.Watch(ctx, cfg.Interval)

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}
	logging.Info("stopped")
	return err
}

func cmdStatus(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("status", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	t, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if t.IsEmpty() {
		fmt.Printf("Nothing synced yet into %s\n", cfg.Dir)
		return nil
	}

	c := tree.Count(t.Root)
	fmt.Printf("Domain:      %s\n", t.Domain)
	fmt.Printf("Directory:   %s\n", cfg.Dir)
	fmt.Printf("Courses:     %d\n", len(t.Root.Files))
	fmt.Printf("Directories: %d\n", c.Directories)
	fmt.Printf("Files:       %d (%.1f MB)\n", c.Files, float64(c.Bytes)/(1<<20))
	if !c.Newest.IsZero() {
		fmt.Printf("Newest:      %s\n", c.Newest.Local().Format(time.RFC1123))
	}
	return nil
}

func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	domain := fs.String("domain", "", "Canvas domain, e.g. canvas.example.edu")
	fs.Parse(args)

	reader := bufio.NewReader(os.Stdin)
	if *domain == "" {
		fmt.Print("Canvas domain: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		*domain = strings.TrimSpace(line)
	}
	*domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(*domain, "https://"), "http://"), "/")
	if *domain == "" {
		return fmt.Errorf("a Canvas domain is required")
	}

	fmt.Print("Access token (Account > Settings > New Access Token): ")
	var token string
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = string(b)
	} else {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		token = line
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("an access token is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := canvas.New(canvas.Config{Domain: *domain, Token: token, Timeout: 30 * time.Second})
	user, err := c.Self(ctx)
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}

	path := canvas.TokenFilePath()
	tf := &canvas.TokenFile{Token: token, Domain: *domain, User: user.Name, SavedAt: time.Now()}
	if err := canvas.SaveToken(path, tf); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("Logged in as %s on %s. Token saved to %s\n", user.Name, *domain, path)
	return nil
}

func cmdLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	path := canvas.TokenFilePath()
	tf, err := canvas.LoadToken(path)
	if err != nil {
		return err
	}
	if tf == nil {
		fmt.Println("No saved token found.")
		return nil
	}
	if err := canvas.DeleteToken(path); err != nil {
		return fmt.Errorf("delete token file: %w", err)
	}
	fmt.Printf("Logged out of %s. The token itself stays valid until you delete it in Canvas.\n", tf.Domain)
	return nil
}

func printReport(r *mirror.Report) {
	if r == nil {
		return
	}
	if !r.Changed {
		fmt.Println("Already up to date.")
		return
	}
	fmt.Printf("Planned %d directories and %d files (%.1f MB), %d ignored\n",
		r.Plan.Directories, r.Plan.Files, float64(r.Plan.Bytes)/(1<<20), r.Plan.Ignored)
	if r.Result != nil {
		fmt.Printf("Downloaded %d files (%.1f MB) in %s\n",
			r.Result.Downloaded, float64(r.Result.Bytes)/(1<<20), r.Duration.Round(time.Millisecond))
		for _, e := range r.Result.Failed {
			fmt.Printf("  failed: %v\n", e)
		}
	}
	for _, e := range r.Skipped {
		fmt.Printf("  skipped: %v\n", e)
	}
	if r.Rewound > 0 {
		fmt.Printf("%d files will be retried on the next sync\n", r.Rewound)
	}
}
