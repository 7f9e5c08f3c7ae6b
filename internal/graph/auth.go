package graph

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// assertionValidity is the lifetime of a client assertion JWT. Azure AD
// rejects assertions older than their exp claim; ten minutes matches what
// msal issues.
const assertionValidity = 10 * time.Minute

// clientAssertionType is the OAuth2 assertion type for JWT bearer assertions.
const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// CertCredential holds the material for the client-credentials certificate
// flow: the app registration, its authority, and the signing certificate's
// thumbprint and private key.
type CertCredential struct {
	ClientID   string
	Authority  string // e.g. https://login.microsoftonline.com/{tenant}
	Scope      string // e.g. https://graph.microsoft.com/.default
	Thumbprint string // hex-encoded SHA-1 certificate thumbprint
	PrivateKey *rsa.PrivateKey
}

// tokenURL returns the authority's v2.0 token endpoint.
func (c CertCredential) tokenURL() string {
	return strings.TrimRight(c.Authority, "/") + "/oauth2/v2.0/token"
}

// Validate checks that all credential fields are present and the thumbprint
// is valid hex.
func (c CertCredential) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("graph: credential missing client ID")
	case c.Authority == "":
		return errors.New("graph: credential missing authority")
	case c.Scope == "":
		return errors.New("graph: credential missing scope")
	case c.PrivateKey == nil:
		return errors.New("graph: credential missing private key")
	}

	if _, err := hex.DecodeString(strings.ReplaceAll(c.Thumbprint, ":", "")); err != nil || c.Thumbprint == "" {
		return fmt.Errorf("graph: credential thumbprint is not valid hex: %q", c.Thumbprint)
	}

	return nil
}

// NewCertTokenSource returns a TokenSource implementing the OAuth2
// client-credentials grant with a certificate assertion. Tokens are cached
// and reused until they expire; a fresh assertion is minted only when a new
// token must be requested. All failures satisfy errors.Is(err, ErrAuth).
func NewCertTokenSource(
	ctx context.Context, cred CertCredential, httpClient *http.Client, logger *slog.Logger,
) (TokenSource, error) {
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	src := &assertionSource{
		ctx:        ctx,
		cred:       cred,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}

	// ReuseTokenSource provides the "cached access token for the lifetime of
	// the process" behavior: assertionSource is only consulted again once the
	// cached token expires.
	return &tokenBridge{src: oauth2.ReuseTokenSource(nil, src), logger: logger}, nil
}

// assertionSource mints a client assertion and redeems it for an access
// token. Implements oauth2.TokenSource so it can sit behind ReuseTokenSource.
type assertionSource struct {
	ctx        context.Context
	cred       CertCredential
	httpClient *http.Client
	logger     *slog.Logger

	// now is stubbed in tests for deterministic claim windows.
	now func() time.Time
}

// tokenEndpointResponse is the subset of the token endpoint JSON we consume.
type tokenEndpointResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *assertionSource) Token() (*oauth2.Token, error) {
	assertion, err := s.signAssertion()
	if err != nil {
		return nil, fmt.Errorf("%w: signing client assertion: %w", ErrAuth, err)
	}

	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_id":             {s.cred.ClientID},
		"scope":                 {s.cred.Scope},
		"client_assertion_type": {clientAssertionType},
		"client_assertion":      {assertion},
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.cred.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: creating token request: %w", ErrAuth, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	s.logger.Debug("requesting access token",
		slog.String("client_id", s.cred.ClientID),
		slog.String("scope", s.cred.Scope),
	)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request failed: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading token response: %w", ErrAuth, err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("token endpoint rejected request",
			slog.Int("status", resp.StatusCode),
		)

		return nil, fmt.Errorf("%w: token endpoint returned HTTP %d: %s", ErrAuth, resp.StatusCode, string(body))
	}

	var ter tokenEndpointResponse
	if err := json.Unmarshal(body, &ter); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %w", ErrAuth, err)
	}

	if ter.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response contained no access_token", ErrAuth)
	}

	tok := &oauth2.Token{
		AccessToken: ter.AccessToken,
		TokenType:   ter.TokenType,
	}

	if ter.ExpiresIn > 0 {
		tok.Expiry = s.now().Add(time.Duration(ter.ExpiresIn) * time.Second)
	}

	s.logger.Info("access token acquired",
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// signAssertion builds and signs the RS256 client assertion JWT.
// The x5t header carries the base64url SHA-1 thumbprint so Azure AD can
// select the registered certificate.
func (s *assertionSource) signAssertion() (string, error) {
	thumbBytes, err := hex.DecodeString(strings.ReplaceAll(s.cred.Thumbprint, ":", ""))
	if err != nil {
		return "", fmt.Errorf("decoding thumbprint: %w", err)
	}

	now := s.now()

	claims := jwt.MapClaims{
		"aud": s.cred.tokenURL(),
		"iss": s.cred.ClientID,
		"sub": s.cred.ClientID,
		"jti": uuid.NewString(),
		"nbf": now.Unix(),
		"iat": now.Unix(),
		"exp": now.Add(assertionValidity).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["x5t"] = base64.RawURLEncoding.EncodeToString(thumbBytes)

	return token.SignedString(s.cred.PrivateKey)
}

// tokenBridge adapts oauth2.TokenSource to graph.TokenSource.
// Logs token acquisition failures so auth problems are visible.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))

		if errors.Is(err, ErrAuth) {
			return "", err
		}

		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	return t.AccessToken, nil
}

// ParsePrivateKey parses an RSA private key from PEM, accepting both PKCS#1
// ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("graph: no PEM block found in private key data")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("graph: parsing private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("graph: private key is %T, want *rsa.PrivateKey", parsed)
	}

	return key, nil
}
