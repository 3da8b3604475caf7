package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/mizuleaf/inkgate/internal/adapter/driven/ftoken"
	"github.com/mizuleaf/inkgate/internal/adapter/driven/nso"
	"github.com/mizuleaf/inkgate/internal/adapter/driven/statestore"
	"github.com/mizuleaf/inkgate/internal/application"
	"github.com/mizuleaf/inkgate/internal/config"
	"github.com/mizuleaf/inkgate/internal/domain/model"
	"github.com/mizuleaf/inkgate/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := nso.NewClient(cfg.UserAgent, cfg.HTTPTimeout)
	opts := application.Options{
		Client:          client,
		Attestor:        ftoken.NewClient(cfg.UserAgent, cfg.HTTPTimeout),
		AttestEndpoints: cfg.FTokenEndpoints,
		Store:           statestore.New(),
		DefaultPath:     cfg.ConfigPath,
	}

	if len(os.Args) < 2 {
		return fmt.Errorf("usage: inkgate <login|status|refresh>")
	}
	switch os.Args[1] {
	case "login":
		return runLogin(ctx, opts, client)
	case "status":
		return runStatus(ctx, opts)
	case "refresh":
		return runRefresh(ctx, opts)
	default:
		return fmt.Errorf("unknown command %q (want login, status, or refresh)", os.Args[1])
	}
}

// runLogin walks the user through the interactive login ceremony, derives
// the full token set, and saves it to the default config path.
func runLogin(ctx context.Context, opts application.Options, ceremony driven.LoginCeremony) error {
	loginURL, err := ceremony.GenerateLoginURL()
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in a browser, approve the login, then paste the")
	fmt.Println("link behind the \"Select this account\" button:")
	fmt.Println()
	fmt.Println(loginURL)
	fmt.Print("\nredirect URI: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading redirect URI: %w", err)
	}
	code, err := ceremony.SessionTokenCode(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	sessionToken, err := ceremony.ExchangeCode(ctx, code)
	if err != nil {
		return err
	}

	mgr, err := application.FromSessionToken(opts, sessionToken)
	if err != nil {
		return err
	}
	if err := mgr.EnsureFresh(ctx); err != nil {
		return err
	}
	return mgr.Save("", true)
}

// runStatus loads the stored credential set and prints each token's
// remaining lifetime without touching the network beyond the load itself.
func runStatus(ctx context.Context, opts application.Options) error {
	mgr, err := application.Load(ctx, opts)
	if err != nil {
		return err
	}

	origin := mgr.Origin()
	if origin.Locator != "" {
		fmt.Printf("origin: %s (%s)\n", origin.Source, origin.Locator)
	} else {
		fmt.Printf("origin: %s\n", origin.Source)
	}

	now := time.Now()
	for _, kind := range model.Kinds {
		cred, err := mgr.Keychain().Get(kind)
		if err != nil {
			fmt.Printf("  %-14s absent\n", kind)
			continue
		}
		fmt.Printf("  %-14s expires in %s\n", kind, cred.TimeRemainingString(now))
	}
	return nil
}

// runRefresh regenerates any stale tokens and writes the set back.
func runRefresh(ctx context.Context, opts application.Options) error {
	mgr, err := application.Load(ctx, opts)
	if err != nil {
		return err
	}
	if err := mgr.EnsureFresh(ctx); err != nil {
		return err
	}
	return mgr.Save("", true)
}
