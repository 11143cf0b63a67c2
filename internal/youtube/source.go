package youtube

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/pipeline"
	"github.com/zoomsync/backend/internal/store"
)

// Source builds the Uploader from the stored OAuth credential.
type Source struct {
	creds   store.Credentials
	oauth   *oauth2.Config
	privacy string
	opts    []option.ClientOption
	logger  *zap.Logger
}

// NewSource returns an UploaderSource. Extra client options are appended to the token source.
func NewSource(creds store.Credentials, cfg *oauth2.Config, privacy string, logger *zap.Logger, opts ...option.ClientOption) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{creds: creds, oauth: cfg, privacy: privacy, opts: opts, logger: logger}
}

// Uploader implements pipeline.UploaderSource. It returns pipeline.ErrNoCredential until the
// operator has completed the consent flow.
func (s *Source) Uploader(ctx context.Context) (pipeline.Uploader, error) {
	cred, err := s.creds.Get(ctx, models.ProviderYouTube)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pipeline.ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	// The uploader outlives this tick, so token refreshes must not be tied to its context.
	bg := context.WithoutCancel(ctx)
	ts := oauth2.ReuseTokenSource(cred.Token(), &persistingSource{
		base:   s.oauth.TokenSource(bg, cred.Token()),
		creds:  s.creds,
		ctx:    bg,
		last:   cred.AccessToken,
		logger: s.logger,
	})
	svc, err := youtube.NewService(bg, append([]option.ClientOption{option.WithTokenSource(ts)}, s.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	s.logger.Info("youtube uploader ready", zap.Time("token_expiry", cred.Expiry))
	return NewUploader(svc, s.privacy, s.logger), nil
}

// persistingSource stores every refreshed token so a restart does not need a new consent.
type persistingSource struct {
	base   oauth2.TokenSource
	creds  store.Credentials
	ctx    context.Context
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.creds.Put(p.ctx, models.CredentialFromToken(models.ProviderYouTube, tok)); err != nil {
			p.logger.Warn("persist refreshed token failed", zap.Error(err))
		} else {
			p.last = tok.AccessToken
		}
	}
	return tok, nil
}
