// Package youtube publishes downloaded recordings as unlisted videos and files them into playlists.
package youtube

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/youtube/v3"

	"github.com/zoomsync/backend/internal/metadata"
	"github.com/zoomsync/backend/internal/models"
)

const (
	// VideoURLPrefix is prepended to the video id to form the stored URL.
	VideoURLPrefix = "https://youtu.be/"
	// CategoryEducation is the YouTube category id for education.
	CategoryEducation = "27"
	DefaultPrivacy    = "unlisted"

	maxTitleLen       = 100
	maxDescriptionLen = 5000
)

// api is the subset of the Data API the uploader calls.
type api interface {
	InsertVideo(ctx context.Context, v *youtube.Video, f *os.File) (*youtube.Video, error)
	ListPlaylists(ctx context.Context, fn func([]*youtube.Playlist) error) error
	InsertPlaylist(ctx context.Context, p *youtube.Playlist) (*youtube.Playlist, error)
	InsertPlaylistItem(ctx context.Context, it *youtube.PlaylistItem) error
}

type serviceAPI struct {
	svc *youtube.Service
}

func (s serviceAPI) InsertVideo(ctx context.Context, v *youtube.Video, f *os.File) (*youtube.Video, error) {
	return s.svc.Videos.Insert([]string{"snippet", "status"}, v).Media(f).Context(ctx).Do()
}

func (s serviceAPI) ListPlaylists(ctx context.Context, fn func([]*youtube.Playlist) error) error {
	return s.svc.Playlists.List([]string{"snippet"}).Mine(true).MaxResults(50).Pages(ctx, func(r *youtube.PlaylistListResponse) error {
		return fn(r.Items)
	})
}

func (s serviceAPI) InsertPlaylist(ctx context.Context, p *youtube.Playlist) (*youtube.Playlist, error) {
	return s.svc.Playlists.Insert([]string{"snippet", "status"}, p).Context(ctx).Do()
}

func (s serviceAPI) InsertPlaylistItem(ctx context.Context, it *youtube.PlaylistItem) error {
	_, err := s.svc.PlaylistItems.Insert([]string{"snippet"}, it).Context(ctx).Do()
	return err
}

// Uploader implements pipeline.Uploader on top of the YouTube Data API.
type Uploader struct {
	api     api
	privacy string
	logger  *zap.Logger

	mu        sync.Mutex
	playlists map[string]string // title -> id
	loaded    bool
}

// NewUploader wraps an authenticated service.
func NewUploader(svc *youtube.Service, privacy string, logger *zap.Logger) *Uploader {
	return newUploader(serviceAPI{svc: svc}, privacy, logger)
}

func newUploader(a api, privacy string, logger *zap.Logger) *Uploader {
	if privacy == "" {
		privacy = DefaultPrivacy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{api: a, privacy: privacy, logger: logger, playlists: make(map[string]string)}
}

// Upload inserts the video and adds it to meta.Playlist. A playlist failure is logged but does not
// fail the upload, since retrying would publish the video twice.
func (u *Uploader) Upload(ctx context.Context, path string, meta models.UploadMetadata) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	video, err := u.api.InsertVideo(ctx, &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       sanitize(meta.Title, maxTitleLen),
			Description: sanitize(meta.Description, maxDescriptionLen),
			CategoryId:  CategoryEducation,
			Tags:        tags(meta),
		},
		Status: &youtube.VideoStatus{PrivacyStatus: u.privacy},
	}, f)
	if err != nil {
		return "", fmt.Errorf("insert video: %w", err)
	}
	url := VideoURLPrefix + video.Id
	log := u.logger.With(zap.String("video_id", video.Id), zap.String("playlist", meta.Playlist))

	if meta.Playlist == "" {
		return url, nil
	}
	playlistID, err := u.playlistID(ctx, meta.Playlist)
	if err != nil {
		log.Warn("resolve playlist failed", zap.Error(err))
		return url, nil
	}
	err = u.api.InsertPlaylistItem(ctx, &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: video.Id},
		},
	})
	if err != nil {
		log.Warn("add to playlist failed", zap.Error(err))
	}
	log.Info("video published", zap.String("url", url))
	return url, nil
}

// playlistID finds the playlist by title, creating it when missing. Results are cached.
func (u *Uploader) playlistID(ctx context.Context, title string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.loaded {
		err := u.api.ListPlaylists(ctx, func(items []*youtube.Playlist) error {
			for _, p := range items {
				if p.Snippet != nil {
					u.playlists[p.Snippet.Title] = p.Id
				}
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("list playlists: %w", err)
		}
		u.loaded = true
	}
	if id, ok := u.playlists[title]; ok {
		return id, nil
	}

	created, err := u.api.InsertPlaylist(ctx, &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: sanitize(title, maxTitleLen)},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: u.privacy},
	})
	if err != nil {
		return "", fmt.Errorf("create playlist: %w", err)
	}
	u.playlists[title] = created.Id
	u.logger.Info("playlist created", zap.String("title", title), zap.String("playlist_id", created.Id))
	return created.Id, nil
}

// sanitize strips the angle brackets the API rejects and caps the length in runes.
func sanitize(s string, max int) string {
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	return metadata.PadString(s, max)
}

func tags(meta models.UploadMetadata) []string {
	var out []string
	for _, t := range []string{meta.Category, meta.Playlist} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
