package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/nichefy/nichefy/internal/db"
	"github.com/nichefy/nichefy/internal/niche"
	catalog "github.com/nichefy/nichefy/internal/spotify"
)

const (
	searchResultLimit = 10
	historyLimit      = 50
)

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth        *spotifyauth.Authenticator
	sessions    SessionManager
	suggest     niche.Suggester
	database    *db.DB
	band        niche.Band
	minResults  int
	frontendURL string
	logger      zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions SessionManager, cfg ServerConfig) *Handlers {
	return &Handlers{
		auth:        auth,
		sessions:    sessions,
		suggest:     cfg.Suggester,
		database:    cfg.Database,
		band:        cfg.Band,
		minResults:  cfg.MinResults,
		frontendURL: cfg.FrontendURL,
		logger:      cfg.Logger.With().Str("component", "handlers").Logger(),
	}
}

// Health handles the liveness check (GET /health).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Login starts the Spotify OAuth flow (GET /api/auth/login). It responds
// with the authorization URL for the frontend to open.
func (h *Handlers) Login(w http.ResponseWriter, _ *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	writeJSON(w, http.StatusOK, map[string]string{"auth_url": h.auth.AuthURL(state)})
}

// Callback handles the OAuth callback from Spotify (GET /api/auth/callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing state cookie")
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Redirect(w, r, h.frontendURL+"?error="+errMsg, http.StatusTemporaryRedirect)
		return
	}

	// Exchange code for token
	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		h.logger.Error().Err(err).Msg("token exchange failed")
		http.Redirect(w, r, h.frontendURL+"?error=token_failed", http.StatusTemporaryRedirect)
		return
	}

	// Get user info from Spotify
	api := spotifyapi.New(h.auth.Client(r.Context(), token))
	user, err := api.CurrentUser(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("fetching user after auth failed")
		http.Redirect(w, r, h.frontendURL+"?error=profile_failed", http.StatusTemporaryRedirect)
		return
	}

	// Keep the stored profile current; sessions reference it by ID.
	if h.database != nil {
		dbUser := &db.User{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}
		if err := h.database.Users().Upsert(r.Context(), dbUser); err != nil {
			h.logger.Error().Err(err).Msg("upserting user failed")
			http.Redirect(w, r, h.frontendURL+"?error=session_failed", http.StatusTemporaryRedirect)
			return
		}
	}

	session, err := h.sessions.Create(r.Context(), token, user.ID, user.DisplayName)
	if err != nil {
		h.logger.Error().Err(err).Msg("creating session failed")
		http.Redirect(w, r, h.frontendURL+"?error=session_failed", http.StatusTemporaryRedirect)
		return
	}

	h.sessions.SetCookie(w, session)
	http.Redirect(w, r, h.frontendURL+"?logged_in=true", http.StatusTemporaryRedirect)
}

// AuthStatus reports whether the caller holds a live session
// (GET /api/auth/status), refreshing the Spotify token if it is expiring.
func (h *Handlers) AuthStatus(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}

	// The oauth2 transport refreshes lazily; asking for the current token
	// forces a refresh when the stored one has expired.
	api := spotifyapi.New(h.auth.Client(r.Context(), session.Token))
	if _, err := api.Token(); err != nil {
		h.sessions.Delete(r.Context(), session.ID)
		h.sessions.ClearCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	h.persistToken(r.Context(), session, session.Token.AccessToken, api)

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]string{
			"id":           session.UserID,
			"display_name": session.UserName,
		},
	})
}

// Logout clears the session (POST /api/auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UserProfile returns the current user's Spotify profile (GET /api/user/profile).
func (h *Handlers) UserProfile(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	cat, api := h.clientFor(r.Context(), session)
	profile, err := cat.CurrentUser(r.Context())
	if err != nil {
		h.writeCatalogError(w, err, "fetching profile")
		return
	}
	h.persistToken(r.Context(), session, session.Token.AccessToken, api)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": profile})
}

// SearchArtists searches the catalog by name for seed selection
// (GET /api/search/artists?q=).
func (h *Handlers) SearchArtists(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	cat, _ := h.clientFor(r.Context(), session)
	artists, err := cat.SearchArtists(r.Context(), query, searchResultLimit)
	if err != nil {
		h.writeCatalogError(w, err, "searching artists")
		return
	}
	if artists == nil {
		artists = []niche.Artist{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"artists": artists,
		"count":   len(artists),
	})
}

// recommendRequest is the body of both recommendation endpoints.
type recommendRequest struct {
	ArtistID string `json:"artist_id"`
	Stream   bool   `json:"stream"`
}

// RecommendNiche finds niche artists related to a seed
// (POST /api/recommend/niche). With stream=true the response is an SSE
// stream of progress events ending in a single complete event.
func (h *Handlers) RecommendNiche(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArtistID == "" {
		writeError(w, http.StatusBadRequest, "artist_id is required")
		return
	}

	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	cat, api := h.clientFor(r.Context(), session)
	engine := niche.NewEngine(cat, h.suggest, h.logger)
	opts := niche.Options{Band: h.band, MinResults: h.minResults}

	if req.Stream {
		h.streamNiche(w, r, engine, cat, session, req.ArtistID, opts)
		return
	}

	artists, err := engine.FindNiche(r.Context(), req.ArtistID, opts)
	if err != nil {
		h.writeCatalogError(w, err, "finding niche artists")
		return
	}
	if artists == nil {
		artists = []niche.Artist{}
	}

	h.recordDiscoveries(r.Context(), session, cat, req.ArtistID, artists)
	h.persistToken(r.Context(), session, session.Token.AccessToken, api)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"artists": artists,
		"count":   len(artists),
	})
}

// recommendedArtist is a niche find annotated with its seed provenance.
type recommendedArtist struct {
	niche.Artist
	RecommendedFrom string `json:"recommended_from"`
}

// RecommendForUser finds niche artists for each of the user's top artists
// (POST /api/recommend/user).
func (h *Handlers) RecommendForUser(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	cat, api := h.clientFor(r.Context(), session)
	engine := niche.NewEngine(cat, h.suggest, h.logger)

	finds, err := engine.RecommendForTop(r.Context(), h.band)
	if err != nil {
		h.writeCatalogError(w, err, "recommending for top artists")
		return
	}

	// Group finds by seed; the provenance carries the full seed record, so
	// persisting needs no further catalog lookups.
	artists := make([]recommendedArtist, 0, len(finds))
	bySeed := make(map[string][]niche.Artist)
	seeds := make(map[string]niche.Artist)
	for _, p := range finds {
		artists = append(artists, recommendedArtist{
			Artist:          p.Niche,
			RecommendedFrom: p.Source.ID,
		})
		bySeed[p.Source.ID] = append(bySeed[p.Source.ID], p.Niche)
		seeds[p.Source.ID] = p.Source
	}
	for id, group := range bySeed {
		h.recordFor(r.Context(), session, seeds[id], group)
	}
	h.persistToken(r.Context(), session, session.Token.AccessToken, api)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"artists": artists,
		"count":   len(artists),
	})
}

// historyItem is one persisted discovery in the history response.
type historyItem struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ImageURL        string    `json:"image,omitempty"`
	Popularity      int       `json:"popularity"`
	SpotifyURL      string    `json:"spotify_url"`
	Genres          []string  `json:"genres"`
	RecommendedFrom string    `json:"recommended_from"`
	SeedName        string    `json:"seed_name"`
	FoundAt         time.Time `json:"found_at"`
}

// History returns the user's recent persisted discoveries
// (GET /api/recommend/history).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}
	if h.database == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery history requires a database")
		return
	}

	discoveries, err := h.database.Discoveries().ListRecent(r.Context(), session.UserID, historyLimit)
	if err != nil {
		h.logger.Error().Err(err).Msg("listing discoveries failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	items := make([]historyItem, 0, len(discoveries))
	for _, d := range discoveries {
		item := historyItem{
			ID:              d.ArtistID,
			Name:            d.ArtistName,
			Popularity:      d.Popularity,
			SpotifyURL:      d.SpotifyURL,
			Genres:          d.Genres,
			RecommendedFrom: d.SeedID,
			SeedName:        d.SeedName,
			FoundAt:         d.CreatedAt,
		}
		if d.ImageURL != nil {
			item.ImageURL = *d.ImageURL
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"artists": items,
		"count":   len(items),
	})
}

// ============================================================================
// Helpers
// ============================================================================

// clientFor builds a catalog client over the session's OAuth token. The
// returned API client is exposed so callers can persist a rotated token.
func (h *Handlers) clientFor(ctx context.Context, session *Session) (*catalog.Client, *spotifyapi.Client) {
	api := spotifyapi.New(h.auth.Client(ctx, session.Token), spotifyapi.WithRetry(true))
	return catalog.New(api), api
}

// persistToken saves the session token if the oauth2 transport rotated it.
func (h *Handlers) persistToken(ctx context.Context, session *Session, previousAccess string, api *spotifyapi.Client) {
	token, err := api.Token()
	if err != nil || token.AccessToken == previousAccess {
		return
	}
	h.sessions.UpdateToken(ctx, session.ID, token)
	session.Token = token
}

// requireSession writes a 401 response and returns nil when the request
// carries no live session.
func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) *Session {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated, please log in with Spotify")
		return nil
	}
	return session
}

// writeCatalogError distinguishes credential failure (the caller must
// re-authenticate) from everything else.
func (h *Handlers) writeCatalogError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, niche.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "Spotify access token expired or invalid, please log in again")
		return
	}
	h.logger.Error().Err(err).Msg(op + " failed")
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed", op))
}

// recordDiscoveries resolves the seed record and persists finds for the
// history endpoint, best effort. Callers that already hold the seed record
// use recordFor directly.
func (h *Handlers) recordDiscoveries(ctx context.Context, session *Session, cat *catalog.Client, seedID string, finds []niche.Artist) {
	if h.database == nil || len(finds) == 0 {
		return
	}

	seed, err := cat.Artist(ctx, seedID)
	if err != nil {
		h.logger.Warn().Err(err).Str("seed", seedID).Msg("skipping discovery record, seed lookup failed")
		return
	}
	h.recordFor(ctx, session, *seed, finds)
}

// recordFor persists the finds attributed to one seed, best effort.
func (h *Handlers) recordFor(ctx context.Context, session *Session, seed niche.Artist, finds []niche.Artist) {
	if h.database == nil || len(finds) == 0 {
		return
	}
	rows := discoveryRows(session.UserID, seed, finds)
	if err := h.database.Discoveries().RecordBatch(ctx, rows); err != nil {
		h.logger.Warn().Err(err).Str("seed", seed.ID).Msg("recording discoveries failed")
	}
}

// discoveryRows builds history rows linking each find to its seed.
func discoveryRows(userID string, seed niche.Artist, finds []niche.Artist) []db.Discovery {
	rows := make([]db.Discovery, len(finds))
	for i, a := range finds {
		d := db.Discovery{
			UserID:     userID,
			SeedID:     seed.ID,
			SeedName:   seed.Name,
			ArtistID:   a.ID,
			ArtistName: a.Name,
			Popularity: a.Popularity,
			Genres:     a.Genres,
			SpotifyURL: a.ExternalURL,
		}
		if a.ImageURL != "" {
			img := a.ImageURL
			d.ImageURL = &img
		}
		rows[i] = d
	}
	return rows
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
