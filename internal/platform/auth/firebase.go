package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/shopmesh/api/internal/platform/config"
)

const authEmulatorEnv = "FIREBASE_AUTH_EMULATOR_HOST"

var errVerifierNotInitialised = errors.New("auth: firebase verifier not initialised")

type idTokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier checks shopper ID tokens with the Firebase Admin SDK and folds SDK
// failures into ErrTokenExpired or ErrTokenInvalid.
type FirebaseVerifier struct {
	client        idTokenClient
	timeout       time.Duration
	checkRevoked  bool
	usingEmulator bool
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout bounds each Admin SDK call.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithRevocationCheck makes every verification also consult the revocation list. It costs
// one extra Admin API round trip per request.
func WithRevocationCheck() FirebaseOption {
	return func(v *FirebaseVerifier) {
		v.checkRevoked = true
	}
}

// NewFirebaseVerifier builds the Admin SDK auth client. With no credentials file the SDK
// uses application default credentials, or the auth emulator when FIREBASE_AUTH_EMULATOR_HOST is set.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(path))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}

	return newFirebaseVerifier(client, strings.TrimSpace(os.Getenv(authEmulatorEnv)) != "", opts...), nil
}

func newFirebaseVerifier(client idTokenClient, emulator bool, opts ...FirebaseOption) *FirebaseVerifier {
	v := &FirebaseVerifier{
		client:        client,
		timeout:       defaultVerifyTimeout,
		usingEmulator: emulator,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	// The emulator does not track revocations.
	if v.usingEmulator {
		v.checkRevoked = false
	}
	return v
}

// VerifyIDToken implements TokenVerifier.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errVerifierNotInitialised
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	var (
		token *firebaseauth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = v.client.VerifyIDToken(ctx, idToken)
	}
	if err != nil {
		return nil, classifyFirebaseError(err)
	}
	return token, nil
}

func classifyFirebaseError(err error) error {
	switch {
	case firebaseauth.IsIDTokenExpired(err):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err), firebaseauth.IsIDTokenInvalid(err):
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
