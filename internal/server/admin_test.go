package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podhost/internal/models"
)

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Admin-Token", "secret-token")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/admin/feeds", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(adminRequest(http.MethodGet, "/admin/feeds", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"feeds":["default"]}`, rec.Body.String())
}

func TestAdminGetSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(adminRequest(http.MethodGet, "/admin/feeds/default/settings", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Settings models.FeedSettings `json:"settings"`
		Fields   []json.RawMessage   `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Test Show", resp.Settings.Values["podcast_title"])
	assert.NotEmpty(t, resp.Fields)

	rec = env.do(adminRequest(http.MethodGet, "/admin/feeds/nope/settings", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPutSettingsSanitizesWithAdvisory(t *testing.T) {
	env := newTestEnv(t)

	body := `{"values":{
		"podcast_title":"Café “Talk”",
		"itunes_author":"Jürgen",
		"itunes_explicit":"false"
	}}`
	rec := env.do(adminRequest(http.MethodPut, "/admin/feeds/default/settings", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Settings models.FeedSettings `json:"settings"`
		Warning  string              `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, `Cafe "Talk"`, resp.Settings.Values["podcast_title"])
	assert.Equal(t, "Jurgen", resp.Settings.Values["itunes_author"])
	// One advisory for the whole submission, however many fields lost
	// characters.
	assert.NotEmpty(t, resp.Warning)

	// A clean submission carries no advisory.
	rec = env.do(adminRequest(http.MethodPut, "/admin/feeds/default/settings",
		`{"values":{"podcast_title":"Plain Talk"}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "warning")
}

func TestAdminPutSettingsRejectsBadSelect(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(adminRequest(http.MethodPut, "/admin/feeds/default/settings",
		`{"values":{"itunes_explicit":"maybe"}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "itunes_explicit")
}

func TestAdminCreateEpisode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(adminRequest(http.MethodPost, "/admin/episodes", `{
		"feed_id": "default",
		"asset_id": "shows/ep1.mp3",
		"published": true,
		"description": {"value": "<p>Brand new</p>", "format": "basic_html"}
	}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var ep models.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ep))
	assert.NotEmpty(t, ep.ID)
	assert.NotEmpty(t, ep.GUID)
	// Untagged file: the title falls back to the filename.
	assert.Equal(t, "ep1", ep.Title)
	assert.False(t, ep.CreatedAt.IsZero())

	stored, err := env.store.GetEpisode(ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "default", stored.FeedID)
	assert.True(t, stored.Published)
}

func TestAdminCreateEpisodeValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(adminRequest(http.MethodPost, "/admin/episodes",
		`{"feed_id":"default"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(adminRequest(http.MethodPost, "/admin/episodes",
		`{"feed_id":"nope","asset_id":"shows/ep1.mp3"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(adminRequest(http.MethodPost, "/admin/episodes",
		`{"feed_id":"default","asset_id":"shows/missing.mp3"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "audio asset not found")
}

func TestAdminEpisodeComments(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.SaveComment(models.Comment{
		ID: "c1", EpisodeID: "ep1", FeedID: "default",
		Name: "Alice", Body: "Waiting for moderation",
		Format: "plain_text", CreatedAt: time.Now().UTC(),
	}))

	rec := env.do(adminRequest(http.MethodGet, "/admin/episodes/ep1/comments", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Comments []models.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Comments, 1)
	assert.Equal(t, "Waiting for moderation", resp.Comments[0].Body)
	assert.False(t, resp.Comments[0].Published)

	rec = env.do(adminRequest(http.MethodGet, "/admin/episodes/nope/comments", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPublishCommentMakesItVisible(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.SaveComment(models.Comment{
		ID: "c1", EpisodeID: "ep1", FeedID: "default",
		Name: "Alice", Body: "Approved at last",
		Format: "plain_text", CreatedAt: time.Now().UTC(),
	}))

	// Hidden until moderated.
	page := env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1", nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.NotContains(t, page.Body.String(), "Approved at last")

	rec := env.do(adminRequest(http.MethodPost, "/admin/comments/c1/publish", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"c1","published":true}`, rec.Body.String())

	page = env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1", nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Approved at last")

	// Unpublish hides it again.
	rec = env.do(adminRequest(http.MethodPost, "/admin/comments/c1/unpublish", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	page = env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1", nil))
	assert.NotContains(t, page.Body.String(), "Approved at last")

	rec = env.do(adminRequest(http.MethodPost, "/admin/comments/missing/publish", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
