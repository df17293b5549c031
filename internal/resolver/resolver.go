// Package resolver turns /play queries into playable tracks. Media links,
// playlists and free-text searches go through yt-dlp; Spotify links are
// re-resolved track by track through a text search.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"discbot/internal/metrics"
	"discbot/internal/player"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyQuery         = errors.New("empty query")
	ErrNoResults          = errors.New("no playable results")
	ErrNoStream           = errors.New("no streamable audio found")
	ErrCatalogUnavailable = errors.New("Spotify credentials missing")
)

// ResolutionError wraps any failure to turn a query into tracks.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Kind classifies a query.
type Kind string

const (
	KindSearch   Kind = "search"
	KindLink     Kind = "link"
	KindPlaylist Kind = "playlist"
	KindCatalog  Kind = "catalog"
)

var spotifyURL = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z]+/)?(track|album|playlist)/([A-Za-z0-9]+)`)

// Classify decides how a query is resolved.
func Classify(query string) Kind {
	q := strings.TrimSpace(query)
	if spotifyURL.MatchString(q) {
		return KindCatalog
	}
	lower := strings.ToLower(q)
	isYouTube := strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be/")
	if strings.Contains(lower, "youtube.com/playlist") || (isYouTube && strings.Contains(lower, "list=")) {
		return KindPlaylist
	}
	if isYouTube {
		return KindLink
	}
	if u, err := url.Parse(q); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return KindLink
	}
	return KindSearch
}

// Extractor resolves media pages.
type Extractor interface {
	// Extract resolves a page URL, or a "ytsearch1:" query, to one track.
	Extract(ctx context.Context, target string) (player.Track, error)
	// Entries lists up to limit entry page URLs of a playlist.
	Entries(ctx context.Context, playlistURL string, limit int) ([]string, error)
}

// Catalog expands a catalog link into text-search queries.
type Catalog interface {
	// Queries returns up to limit search queries for the catalog item.
	Queries(ctx context.Context, kind, id string, limit int) ([]string, error)
}

// Resolver implements player.Resolver.
type Resolver struct {
	extractor   Extractor
	catalog     Catalog
	playlistMax int
	catalogMax  int
	workers     int
	log         zerolog.Logger
}

// New creates a Resolver. catalog may be nil when no credentials are set.
func New(extractor Extractor, catalog Catalog, playlistMax, catalogMax int) *Resolver {
	if playlistMax <= 0 {
		playlistMax = 50
	}
	if catalogMax <= 0 {
		catalogMax = 100
	}
	return &Resolver{
		extractor:   extractor,
		catalog:     catalog,
		playlistMax: playlistMax,
		catalogMax:  catalogMax,
		workers:     4,
		log:         log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the tracks for a query. It never returns an empty slice
// without an error.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]player.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ResolutionError{Query: query, Err: ErrEmptyQuery}
	}

	kind := Classify(query)
	tracks, err := r.resolve(ctx, kind, query)
	if err == nil && len(tracks) == 0 {
		err = ErrNoResults
	}
	metrics.Resolutions.WithLabelValues(string(kind), metrics.Result(err)).Inc()
	if err != nil {
		r.log.Debug().Err(err).Str("kind", string(kind)).Str("query", query).Msg("Resolution failed")
		return nil, &ResolutionError{Query: query, Err: err}
	}
	r.log.Info().Str("kind", string(kind)).Int("tracks", len(tracks)).Msg("Resolved query")
	return tracks, nil
}

func (r *Resolver) resolve(ctx context.Context, kind Kind, query string) ([]player.Track, error) {
	switch kind {
	case KindCatalog:
		if r.catalog == nil {
			return nil, ErrCatalogUnavailable
		}
		m := spotifyURL.FindStringSubmatch(query)
		queries, err := r.catalog.Queries(ctx, m[1], m[2], r.catalogMax)
		if err != nil {
			return nil, err
		}
		if len(queries) > r.catalogMax {
			queries = queries[:r.catalogMax]
		}
		targets := make([]string, len(queries))
		for i, q := range queries {
			targets[i] = "ytsearch1:" + q
		}
		return r.extractAll(ctx, targets), nil

	case KindPlaylist:
		entries, err := r.extractor.Entries(ctx, query, r.playlistMax)
		if err != nil {
			return nil, err
		}
		if len(entries) > r.playlistMax {
			entries = entries[:r.playlistMax]
		}
		return r.extractAll(ctx, entries), nil

	case KindLink:
		t, err := r.extractor.Extract(ctx, query)
		if err != nil {
			return nil, err
		}
		return []player.Track{t}, nil

	default:
		t, err := r.extractor.Extract(ctx, "ytsearch1:"+query)
		if err != nil {
			return nil, err
		}
		return []player.Track{t}, nil
	}
}

// extractAll resolves targets with a small worker pool, keeping input order
// and skipping entries that fail.
func (r *Resolver) extractAll(ctx context.Context, targets []string) []player.Track {
	results := make([]*player.Track, len(targets))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(r.workers, len(targets)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				t, err := r.extractor.Extract(ctx, targets[i])
				if err != nil {
					r.log.Debug().Err(err).Str("target", targets[i]).Msg("Skipping entry")
					continue
				}
				results[i] = &t
			}
		}()
	}
	for i := range targets {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make([]player.Track, 0, len(targets))
	for _, t := range results {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// Sweep releases temporary credential files between tracks.
func (r *Resolver) Sweep() {
	if s, ok := r.extractor.(player.Sweeper); ok {
		s.Sweep()
	}
}

// Close releases everything the extractor holds.
func (r *Resolver) Close() error {
	if c, ok := r.extractor.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
