// ABOUTME: Entry point for the switchboard event pipeline server
// ABOUTME: Subcommands serve, token, sessions and health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/server"
	"github.com/2389/switchboard/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _ _       _     _                         _
 _____      _(_) |_ ___| |__ | |__   ___   __ _ _ __ __| |
/ __\ \ /\ / / | __/ __| '_ \| '_ \ / _ \ / _' | '__/ _' |
\__ \\ V  V /| | || (__| | | | |_) | (_) | (_| | | | (_| |
|___/ \_/\_/ |_|\__\___|_| |_|_.__/ \___/ \__,_|_|  \__,_|
`

// getConfigPath returns the path to the config file.
// Priority: SWITCHBOARD_CONFIG env var > XDG_CONFIG_HOME/switchboard/config.yaml > ~/.config/switchboard/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SWITCHBOARD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "switchboard", "config.yaml")
}

func usage() {
	fmt.Println("Usage: switchboard <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the server")
	fmt.Println("  token --viewer ID [--ttl 24h]      Mint a viewer token")
	fmt.Println("  sessions list                      List gateway sessions")
	fmt.Println("  sessions add --name N --token T    Register or update a gateway session")
	fmt.Println("      [--reject-calls] [--window HH:MM-HH:MM] [--inactive]")
	fmt.Println("  health                             Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "sessions":
		err = runSessions(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Gateway:   %s\n", cfg.Gateway.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", cfg.Database.Driver)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! viewer auth disabled (no auth.jwt_secret)")
	}

	fmt.Println()

	logger.Info("starting switchboard",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"gateway", cfg.Gateway.BaseURL,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     *sync.Mutex // shared with derived handlers
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// parseArgs reads "--flag value", "--flag=value" and bare boolean flags.
// valued lists the flags that take a value; switches lists boolean ones.
func parseArgs(args []string, valued, switches []string) (map[string]string, error) {
	isValued := make(map[string]bool, len(valued))
	for _, name := range valued {
		isValued[name] = true
	}
	isSwitch := make(map[string]bool, len(switches))
	for _, name := range switches {
		isSwitch[name] = true
	}

	out := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		switch {
		case isSwitch[name]:
			if hasValue {
				return nil, fmt.Errorf("--%s does not take a value", name)
			}
			out[name] = "true"
		case isValued[name]:
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("--%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			out[name] = value
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return out, nil
}

func runToken(args []string) error {
	flags, err := parseArgs(args, []string{"viewer", "ttl"}, nil)
	if err != nil {
		return err
	}

	viewerID, err := strconv.ParseInt(flags["viewer"], 10, 64)
	if err != nil || viewerID <= 0 {
		return fmt.Errorf("--viewer must be a positive integer")
	}

	ttl := 24 * time.Hour
	if raw, ok := flags["ttl"]; ok {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("--ttl must be a positive duration")
		}
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured; viewer auth is disabled")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(viewerID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runSessions(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("sessions requires a subcommand (list, add)")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	switch args[0] {
	case "list":
		return listSessions(ctx, s)
	case "add":
		return addSession(ctx, s, args[1:])
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args[0])
	}
}

func listSessions(ctx context.Context, s store.Store) error {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for _, sess := range sessions {
		if sess.IsActive {
			green.Print("● ")
		} else {
			gray.Print("○ ")
		}
		fmt.Printf("%-20s", sess.Name)
		if sess.RejectCallEnabled {
			fmt.Printf(" reject-calls %s-%s", windowBound(sess.RejectWindowStart), windowBound(sess.RejectWindowEnd))
		}
		gray.Printf(" updated %s\n", sess.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func windowBound(t *store.TimeOfDay) string {
	if t == nil {
		return "*"
	}
	return t.String()
}

func addSession(ctx context.Context, s store.Store, args []string) error {
	flags, err := parseArgs(args, []string{"name", "token", "window"}, []string{"reject-calls", "inactive"})
	if err != nil {
		return err
	}

	name := strings.TrimSpace(flags["name"])
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	sess := &store.Session{
		Name:              name,
		Token:             flags["token"],
		IsActive:          flags["inactive"] == "",
		RejectCallEnabled: flags["reject-calls"] != "",
	}

	if raw, ok := flags["window"]; ok {
		startRaw, endRaw, found := strings.Cut(raw, "-")
		if !found {
			return fmt.Errorf("--window must look like HH:MM-HH:MM")
		}
		if sess.RejectWindowStart, err = parseBound(startRaw); err != nil {
			return err
		}
		if sess.RejectWindowEnd, err = parseBound(endRaw); err != nil {
			return err
		}
	}

	if err := s.UpsertSession(ctx, sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Saved session %s (id %d)\n", sess.Name, sess.ID)
	return nil
}

// parseBound parses one side of a reject window. An empty side or "*" is unbounded.
func parseBound(raw string) (*store.TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil, nil
	}
	t, err := store.ParseTimeOfDay(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid window bound %q: %w", raw, err)
	}
	return &t, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
