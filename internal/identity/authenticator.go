package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
)

var (
	// ErrInvalidToken is returned when the identity provider rejects a token.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("identity: token expired")
)

// AuthenticatorDeps wires an Authenticator.
type AuthenticatorDeps struct {
	Verifier TokenVerifier
	Bus      events.Bus
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Authenticator signs sessions in and out.
type Authenticator struct {
	verifier TokenVerifier
	bus      events.Bus
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(deps AuthenticatorDeps) (*Authenticator, error) {
	if deps.Verifier == nil {
		return nil, errors.New("identity: token verifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewLocalBus()
	}
	return &Authenticator{verifier: deps.Verifier, bus: bus, logger: logger.Named("identity"), now: now}, nil
}

// Login verifies idToken and records it in the request session.
func (a *Authenticator) Login(ctx context.Context, idToken string) (*User, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrInvalidToken
	}
	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		if firebaseauth.IsIDTokenExpired(err) {
			return nil, ErrTokenExpired
		}
		a.logger.Info("id token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token == nil || token.UID == "" {
		return nil, ErrInvalidToken
	}
	expiry := time.Unix(token.Expires, 0)
	if token.Expires == 0 {
		expiry = a.now().Add(time.Hour)
	}
	if !a.now().Before(expiry) {
		return nil, ErrTokenExpired
	}

	user := &User{UID: token.UID, Email: claimString(token.Claims, "email"), Name: claimString(token.Claims, "name")}

	sess := session.FromContext(ctx)
	previous := sess.ID
	sess.SignIn(user.UID, user.Email, user.Name, idToken, expiry)
	a.publish(ctx, events.SessionTopic(previous), events.SessionTopic(sess.ID), events.UserTopic(user.UID))
	return user, nil
}

// Logout clears the credential from the request session.
func (a *Authenticator) Logout(ctx context.Context) {
	sess := session.FromContext(ctx)
	previous, uid := sess.ID, sess.UserID
	sess.SignOut()
	a.publish(ctx, events.SessionTopic(previous), events.SessionTopic(sess.ID), events.UserTopic(uid))
}

func (a *Authenticator) publish(ctx context.Context, topics ...string) {
	sent := map[string]struct{}{}
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, dup := sent[topic]; dup {
			continue
		}
		sent[topic] = struct{}{}
		if err := a.bus.Publish(ctx, events.Event{Topic: topic, Kind: events.KindAuthChanged}); err != nil {
			a.logger.Warn("publish auth change", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
