// Command gdrive-auth runs the OAuth consent flow once and prints the
// refresh token the Drive output publisher needs (GDRIVE_REFRESH_TOKEN).
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"videoproc/internal/adapters/storage/gdrive"
)

const authTimeout = 3 * time.Minute

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "gdrive-auth:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	clientID := strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_SECRET"))
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set")
	}

	// Local callback on a free port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	conf := gdrive.OAuthConfig(clientID, clientSecret, redirectURL)

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", callback(state, codeCh, errCh))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer srv.Close()

	// Offline access plus forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	fmt.Println("Open this URL in your browser:")
	fmt.Println()
	fmt.Println(authURL)
	fmt.Println()
	fmt.Println("Waiting for authorization on", redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(authTimeout):
		return fmt.Errorf("timed out waiting for authorization")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	if strings.TrimSpace(tok.RefreshToken) == "" {
		fmt.Println()
		fmt.Println("No refresh_token was returned.")
		fmt.Println("Revoke the app's previous access at https://myaccount.google.com/permissions and run this command again.")
		return nil
	}

	fmt.Println()
	fmt.Println("GDRIVE_REFRESH_TOKEN=" + tok.RefreshToken)
	return nil
}

func callback(state string, codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var err error
		switch {
		case q.Get("state") != state:
			err = fmt.Errorf("invalid state")
		case q.Get("error") != "":
			err = fmt.Errorf("auth error: %s", q.Get("error"))
		case q.Get("code") == "":
			err = fmt.Errorf("missing code")
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			select {
			case errCh <- err:
			default:
			}
			return
		}

		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
