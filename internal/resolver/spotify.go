package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// trackSource is the subset of the Spotify Web API the catalog reads.
type trackSource interface {
	GetTrack(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullTrack, error)
	GetAlbumTracks(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.SimpleTrackPage, error)
	GetPlaylistItems(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error)
}

// Spotify turns Spotify track, album and playlist links into search queries
// using app-only (client credentials) access.
type Spotify struct {
	api trackSource
}

// NewSpotify returns nil when either credential is missing.
func NewSpotify(ctx context.Context, clientID, clientSecret string) *Spotify {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Spotify{api: spotify.New(cfg.Client(ctx), spotify.WithRetry(true))}
}

// Queries implements Catalog.
func (s *Spotify) Queries(ctx context.Context, kind, id string, limit int) ([]string, error) {
	switch kind {
	case "track":
		t, err := s.api.GetTrack(ctx, spotify.ID(id))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch Spotify track: %w", err)
		}
		return []string{searchQuery(t.Name, t.Artists)}, nil
	case "album":
		return s.albumQueries(ctx, spotify.ID(id), limit)
	case "playlist":
		return s.playlistQueries(ctx, spotify.ID(id), limit)
	default:
		return nil, fmt.Errorf("unsupported Spotify link type %q", kind)
	}
}

func (s *Spotify) albumQueries(ctx context.Context, id spotify.ID, limit int) ([]string, error) {
	const page = 50
	var out []string
	for offset := 0; len(out) < limit; offset += page {
		res, err := s.api.GetAlbumTracks(ctx, id, spotify.Limit(page), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch Spotify album: %w", err)
		}
		for _, t := range res.Tracks {
			out = append(out, searchQuery(t.Name, t.Artists))
			if len(out) == limit {
				break
			}
		}
		if len(res.Tracks) < page {
			break
		}
	}
	return out, nil
}

func (s *Spotify) playlistQueries(ctx context.Context, id spotify.ID, limit int) ([]string, error) {
	const page = 100
	var out []string
	for offset := 0; len(out) < limit; offset += page {
		res, err := s.api.GetPlaylistItems(ctx, id, spotify.Limit(page), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch Spotify playlist: %w", err)
		}
		for _, item := range res.Items {
			t := item.Track.Track
			if t == nil || item.IsLocal {
				continue
			}
			out = append(out, searchQuery(t.Name, t.Artists))
			if len(out) == limit {
				break
			}
		}
		if len(res.Items) < page {
			break
		}
	}
	return out, nil
}

// searchQuery builds "artist title audio" for a text search.
func searchQuery(name string, artists []spotify.SimpleArtist) string {
	parts := make([]string, 0, 3)
	if len(artists) > 0 && artists[0].Name != "" {
		parts = append(parts, artists[0].Name)
	}
	parts = append(parts, name, "audio")
	return strings.Join(parts, " ")
}
