package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/magic-code-auth/config"
	"github.com/oksasatya/magic-code-auth/pkg/authclient"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

const usage = `usage: cli <command>

commands:
  login           sign in through the browser
  status [-verify] show the stored session
  logout          forget the stored tokens
`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-cli", cfg.Env)
	logger.SetOutput(os.Stderr)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	path := cfg.CLITokenFile
	if path == "" {
		p, err := authclient.DefaultTokenFile()
		if err != nil {
			logger.Fatalf("token file: %v", err)
		}
		path = p
	}
	store := authclient.NewFileStore(path)
	client := authclient.New(authclient.Config{
		ClientID: cfg.CLIClientID,
		Issuer:   cfg.IssuerURL,
		Secret:   cfg.JWTAccessSecret,
	})

	var err error
	switch os.Args[1] {
	case "login":
		err = login(client, store, cfg.CLIListenAddr, logger)
	case "status":
		err = status(client, store, os.Args[2:], logger)
	case "logout":
		err = store.Clear()
		if err == nil {
			fmt.Println("logged out")
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Error(os.Args[1] + " failed")
		os.Exit(1)
	}
}

func login(client *authclient.Client, store authclient.TokenStore, addr string, logger *logrus.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	redirectURI := "http://" + ln.Addr().String() + "/"

	state, err := helpers.RandomToken(16)
	if err != nil {
		return err
	}
	ar, err := client.Authorize(redirectURI, authclient.WithPKCE(), authclient.WithState(state))
	if err != nil {
		return err
	}
	lc := &authclient.Lifecycle{
		Client:      client,
		Store:       store,
		RedirectURI: redirectURI,
		Verifier:    ar.Verifier,
		State:       ar.State,
		Logger:      logger,
	}

	done := make(chan helpers.Subject, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") == "" {
			http.Redirect(w, r, ar.URL, http.StatusFound)
			return
		}
		if st := lc.Load(r.Context(), r.URL); !st.Authenticated {
			renderPage(w, http.StatusBadRequest, pageData{Title: "Login failed", Message: "Authentication failed. Run the login command again."})
			return
		}
		st, err := lc.Authenticate(r.Context())
		if err != nil || !st.Authenticated {
			renderPage(w, http.StatusBadRequest, pageData{Title: "Login failed", Message: "The issuer rejected the new session."})
			return
		}
		renderPage(w, http.StatusOK, pageData{Title: "Logged in", Email: st.Subject.Properties.Email})
		select {
		case done <- st.Subject:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("callback server stopped")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", redirectURI)

	select {
	case sub := <-done:
		fmt.Printf("logged in as %s (%s)\n", sub.Properties.Email, sub.Properties.ID)
		return nil
	case <-time.After(5 * time.Minute):
		return errors.New("timed out waiting for the browser")
	}
}

func status(client *authclient.Client, store authclient.TokenStore, args []string, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	verify := fs.Bool("verify", false, "check the tokens with the issuer, refreshing if needed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lc := &authclient.Lifecycle{Client: client, Store: store, Logger: logger}
	if !*verify {
		st := lc.Load(context.Background(), &url.URL{})
		if st.Authenticated {
			fmt.Println("tokens stored (not verified)")
		} else {
			fmt.Println("not logged in")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	st, err := lc.Authenticate(ctx)
	if err != nil {
		return err
	}
	if !st.Authenticated {
		fmt.Println("not logged in")
		return nil
	}
	fmt.Printf("logged in as %s (%s)\n", st.Subject.Properties.Email, st.Subject.Properties.ID)
	return nil
}
