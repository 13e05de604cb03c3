package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danwrong/yotohero/internal/auth"
)

const loginTimeout = 5 * time.Minute

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to the card platform",
	}
	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))
	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var copyURL bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the browser and store the tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager, err := ctx.authManager()
			if err != nil {
				return err
			}
			store, err := ctx.tokenStore()
			if err != nil {
				return err
			}

			redirect, err := url.Parse(cfg.Auth.RedirectURL)
			if err != nil || redirect.Host == "" {
				return fmt.Errorf("auth.redirect_url %q is not an absolute URL", cfg.Auth.RedirectURL)
			}

			challenge := auth.GenerateChallenge()
			state := uuid.NewString()
			authURL, err := manager.BuildAuthorizationURL(cfg.Auth.ClientID, cfg.Auth.RedirectURL, challenge.Challenge, state)
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", redirect.Host)
			if err != nil {
				return fmt.Errorf("listen for the login callback on %s: %w", redirect.Host, err)
			}

			out := cmd.OutOrStdout()
			announceURL(out, authURL, copyURL)

			waitCtx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()
			callback, err := awaitCallback(waitCtx, listener, redirect.Path)
			if err != nil {
				return err
			}
			if callback.err != "" {
				return fmt.Errorf("authorization denied: %s", callback.err)
			}
			if callback.state != state {
				return errors.New("login state mismatch; try again")
			}

			pair, err := manager.ExchangeCode(cmd.Context(), cfg.Auth.ClientID, callback.code, challenge.Verifier, cfg.Auth.RedirectURL)
			if err != nil {
				return err
			}
			if err := store.Save(pair); err != nil {
				return err
			}

			fmt.Fprintf(out, "Logged in. Tokens saved to %s\n", store.Path())
			if exp := auth.ExpiresAt(pair.AccessToken); !exp.IsZero() {
				fmt.Fprintf(out, "Access token expires %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyURL, "copy", false, "Copy the authorization URL to the clipboard")
	return cmd
}

func announceURL(out io.Writer, authURL string, copyURL bool) {
	if copyURL {
		err := clipboard.WriteAll(authURL)
		if err == nil {
			fmt.Fprintln(out, "Authorization URL copied to the clipboard. Open it in a browser to continue.")
			return
		}
		fmt.Fprintf(out, "Could not copy to the clipboard (%v).\n", err)
	}
	fmt.Fprintln(out, "Open this URL in a browser to sign in:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  "+authURL)
	fmt.Fprintln(out)
}

type callbackResult struct {
	code  string
	state string
	err   string
}

// awaitCallback serves path on listener until the authorization server
// redirects back or ctx ends.
func awaitCallback(ctx context.Context, listener net.Listener, path string) (callbackResult, error) {
	if path == "" {
		path = "/"
	}
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{code: q.Get("code"), state: q.Get("state"), err: q.Get("error")}
		if res.code == "" && res.err == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		if res.err != "" {
			fmt.Fprintln(w, "Sign-in was cancelled. You can close this window.")
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(listener) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return callbackResult{}, fmt.Errorf("no login callback within %s", loginTimeout)
		}
		return callbackResult{}, ctx.Err()
	}
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored token state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.tokenStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pair, err := store.Load()
			if errors.Is(err, errNotLoggedIn) {
				fmt.Fprintln(out, "Logged in:     no")
				return nil
			}
			if err != nil {
				return err
			}
			manager, err := ctx.authManager()
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Logged in:     yes")
			fmt.Fprintf(out, "Token file:    %s\n", store.Path())
			if exp := auth.ExpiresAt(pair.AccessToken); !exp.IsZero() {
				fmt.Fprintf(out, "Expires:       %s\n", exp.Local().Format(time.RFC1123))
			}
			fmt.Fprintf(out, "Needs refresh: %s\n", yesNo(manager.IsExpired(pair.AccessToken)))
			fmt.Fprintf(out, "Can refresh:   %s\n", yesNo(pair.RefreshToken != ""))
			return nil
		},
	}
}
