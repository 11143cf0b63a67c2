package youtube

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/youtube/v3"

	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/pipeline"
	"github.com/zoomsync/backend/internal/store"
)

type fakeAPI struct {
	mu        sync.Mutex
	videos    []*youtube.Video
	existing  []*youtube.Playlist
	created   []*youtube.Playlist
	items     []*youtube.PlaylistItem
	listCalls int
	videoErr  error
	itemErr   error
}

func (f *fakeAPI) InsertVideo(_ context.Context, v *youtube.Video, _ *os.File) (*youtube.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	f.videos = append(f.videos, v)
	return &youtube.Video{Id: "vid" + string(rune('0'+len(f.videos)))}, nil
}

func (f *fakeAPI) ListPlaylists(_ context.Context, fn func([]*youtube.Playlist) error) error {
	f.listCalls++
	return fn(f.existing)
}

func (f *fakeAPI) InsertPlaylist(_ context.Context, p *youtube.Playlist) (*youtube.Playlist, error) {
	f.created = append(f.created, p)
	return &youtube.Playlist{Id: "pl-new-" + p.Snippet.Title, Snippet: p.Snippet}, nil
}

func (f *fakeAPI) InsertPlaylistItem(_ context.Context, it *youtube.PlaylistItem) error {
	if f.itemErr != nil {
		return f.itemErr
	}
	f.items = append(f.items, it)
	return nil
}

func tempVideo(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "v.mp4")
	require.NoError(t, os.WriteFile(p, []byte("mp4"), 0o644))
	return p
}

func TestUploader_UploadsIntoExistingPlaylist(t *testing.T) {
	api := &fakeAPI{existing: []*youtube.Playlist{{Id: "pl-12", Snippet: &youtube.PlaylistSnippet{Title: "potok-12"}}}}
	u := newUploader(api, "", nil)
	path := tempVideo(t)

	url, err := u.Upload(context.Background(), path, models.UploadMetadata{
		Title:       "Intro <draft>",
		Description: "Topic: Intro",
		Playlist:    "potok-12",
		Category:    "hexlet",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/vid1", url)

	require.Len(t, api.videos, 1)
	v := api.videos[0]
	assert.Equal(t, "Intro draft", v.Snippet.Title)
	assert.Equal(t, DefaultPrivacy, v.Status.PrivacyStatus)
	assert.Equal(t, []string{"hexlet", "potok-12"}, v.Snippet.Tags)

	require.Len(t, api.items, 1)
	assert.Equal(t, "pl-12", api.items[0].Snippet.PlaylistId)
	assert.Equal(t, "vid1", api.items[0].Snippet.ResourceId.VideoId)
	assert.Empty(t, api.created)
}

func TestUploader_CreatesPlaylistOnceAndCaches(t *testing.T) {
	api := &fakeAPI{}
	u := newUploader(api, "private", nil)
	path := tempVideo(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := u.Upload(ctx, path, models.UploadMetadata{Title: "x", Playlist: "Other"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, api.listCalls)
	require.Len(t, api.created, 1)
	assert.Equal(t, "private", api.created[0].Status.PrivacyStatus)
	assert.Len(t, api.items, 2)
	assert.Equal(t, "pl-new-Other", api.items[1].Snippet.PlaylistId)
}

func TestUploader_PlaylistFailureDoesNotFailUpload(t *testing.T) {
	api := &fakeAPI{itemErr: errors.New("forbidden")}
	u := newUploader(api, "", nil)

	url, err := u.Upload(context.Background(), tempVideo(t), models.UploadMetadata{Title: "x", Playlist: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/vid1", url)
}

func TestUploader_VideoErrorFails(t *testing.T) {
	api := &fakeAPI{videoErr: errors.New("quotaExceeded")}
	u := newUploader(api, "", nil)
	_, err := u.Upload(context.Background(), tempVideo(t), models.UploadMetadata{Title: "x"})
	assert.ErrorContains(t, err, "quotaExceeded")
}

func TestSanitize_CapsRunes(t *testing.T) {
	long := strings.Repeat("я", 150)
	got := sanitize(long, maxTitleLen)
	assert.Equal(t, maxTitleLen, len([]rune(got)))
}

func TestSource_NoCredential(t *testing.T) {
	src := NewSource(store.NewMemoryCredentials(), &oauth2.Config{}, "", nil)
	_, err := src.Uploader(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoCredential)
}

func TestSource_WithCredential(t *testing.T) {
	creds := store.NewMemoryCredentials()
	require.NoError(t, creds.Put(context.Background(), &models.Credential{
		Provider:     models.ProviderYouTube,
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}))
	src := NewSource(creds, &oauth2.Config{}, "", nil)
	up, err := src.Uploader(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, up)
}

type staticTS struct{ tok *oauth2.Token }

func (s staticTS) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestPersistingSource_StoresRefreshedToken(t *testing.T) {
	ctx := context.Background()
	creds := store.NewMemoryCredentials()
	ps := &persistingSource{
		base:   staticTS{tok: &oauth2.Token{AccessToken: "new", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}},
		creds:  creds,
		ctx:    ctx,
		last:   "old",
		logger: zap.NewNop(),
	}

	tok, err := ps.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	got, err := creds.Get(ctx, models.ProviderYouTube)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)
}
