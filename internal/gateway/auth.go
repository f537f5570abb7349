// ABOUTME: Inbound bearer auth for the RPC surface: bcrypt API keys and forward JWTs.
// ABOUTME: Auth is off when neither api_keys nor forward_secret is configured.

package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/forward"
)

var errUnauthorized = errors.New("unauthorized")

// authenticator checks the Authorization header on /rpc and /rpc/ws. A
// request passes with either a configured API key (compared against bcrypt
// hashes) or a valid gateway-to-gateway forward token.
type authenticator struct {
	apiKeyHashes []string
	verifier     *forward.TokenMinter
	logger       *slog.Logger
}

func newAuthenticator(cfg config.AuthConfig, verifier *forward.TokenMinter, logger *slog.Logger) *authenticator {
	return &authenticator{
		apiKeyHashes: cfg.APIKeys,
		verifier:     verifier,
		logger:       logger.With("component", "auth"),
	}
}

func (a *authenticator) enabled() bool {
	return len(a.apiKeyHashes) > 0 || a.verifier != nil
}

func (a *authenticator) authorize(r *http.Request) error {
	if !a.enabled() {
		return nil
	}

	token, ok := bearerToken(r)
	if !ok {
		return errUnauthorized
	}

	if a.verifier != nil {
		if err := a.verifier.Verify(token); err == nil {
			return nil
		}
	}
	for _, hash := range a.apiKeyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			return nil
		}
	}

	a.logger.Debug("rejected request", "remote", r.RemoteAddr)
	return errUnauthorized
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
