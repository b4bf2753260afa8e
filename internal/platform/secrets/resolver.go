// Package secrets resolves secret:// configuration references against Google
// Secret Manager, with a local key=value fallback file for development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver implements config.SecretResolver.
type Resolver struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string
}

type resolverConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	client       accessClient
	clientOpts   []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *resolverConfig) { c.logger = logger }
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(c *resolverConfig) { c.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback file path. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(c *resolverConfig) { c.fallbackPath = strings.TrimSpace(path) }
}

// WithClient injects a Secret Manager client, mostly for tests.
func WithClient(client accessClient) Option {
	return func(c *resolverConfig) { c.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *resolverConfig) { c.clientOpts = append(c.clientOpts, opts...) }
}

// NewResolver builds a Resolver. A missing Secret Manager client is not fatal:
// the resolver then serves from the fallback file only.
func NewResolver(ctx context.Context, opts ...Option) *Resolver {
	cfg := resolverConfig{logger: zap.NewNop(), fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	r := &Resolver{
		logger:       cfg.logger,
		projectID:    cfg.projectID,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}
	switch {
	case cfg.client != nil:
		r.client = cfg.client
	case cfg.projectID != "":
		client, err := clientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable; using fallback file only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the secret named by ref.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	value, ok := r.cache[parsed.key()]
	r.mu.RUnlock()
	if ok {
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.projectID
	}
	if project != "" && r.client != nil {
		value, err := r.access(ctx, project, parsed)
		if err == nil {
			r.store(parsed.key(), value)
			return value, nil
		}
		if !isFallbackError(err) {
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.canonical, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("ref", parsed.canonical), zap.Error(err))
	}

	value, ok = r.lookupFallback(parsed)
	if !ok {
		return "", fmt.Errorf("secrets: no value for %s", parsed.canonical)
	}
	r.store(parsed.key(), value)
	return value, nil
}

func (r *Resolver) access(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.secret, ref.version)
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
}

func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		f, err := os.Open(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
			}
			return
		}
		defer f.Close()

		// Keys carry "://" so each line splits on its first "=" rather than dotenv rules.
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			parsed, err := parseReference(normalize(strings.TrimSpace(k)))
			if err != nil {
				continue
			}
			v = strings.TrimSpace(v)
			r.fallback[parsed.key()] = v
			if parsed.version == "latest" {
				r.fallback[parsed.canonical] = v
			}
		}
		if err := scanner.Err(); err != nil {
			r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
		}
	})
	if v, ok := r.fallback[ref.key()]; ok {
		return v, true
	}
	v, ok := r.fallback[ref.canonical]
	return v, ok
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

func (r reference) key() string { return r.canonical + "#" + r.version }

func parseReference(ref string) (reference, error) {
	ref = normalize(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: "secret://" + name,
		secret:    strings.ReplaceAll(name, "/", "_"),
		version:   version,
		project:   strings.TrimSpace(u.Query().Get("project")),
	}, nil
}

func normalize(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "sm://") {
		return "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	return ref
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	default:
		return false
	}
}
