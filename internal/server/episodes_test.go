package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podhost/internal/models"
)

func postComment(env *testEnv, episodeID string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/episodes/"+episodeID+"/comments",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return env.do(req)
}

func TestEpisodePage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "First Episode")
	assert.Contains(t, body, "<p>Hello there</p>")
	assert.Contains(t, body, "/episodes/ep1/comments/new?feed=default")
	assert.Contains(t, body, "No comments yet.")
}

func TestEpisodePageShowsOnlyPublishedComments(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.SaveComment(models.Comment{
		ID: "c1", EpisodeID: "ep1", FeedID: "default",
		Name: "Alice", Body: "Pending comment", CreatedAt: time.Now(),
	}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Pending comment")
}

func TestEpisodePageHidesUnpublished(t *testing.T) {
	env := newTestEnv(t)

	ep, err := env.store.GetEpisode("ep1")
	require.NoError(t, err)
	ep.Published = false
	require.NoError(t, env.store.SaveEpisode(ep))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentFormContext(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1/comments/new?feed=default", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Be nice.")

	// Wrong feed for this episode.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1/comments/new?feed=other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// No feed at all.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/episodes/ep1/comments/new", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown episode.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/episodes/nope/comments/new?feed=default", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentSubmitMismatchIsValidationError(t *testing.T) {
	env := newTestEnv(t)

	// A feed value that is not the episode's feed re-renders the form
	// with an error instead of pretending the page does not exist.
	rec := postComment(env, "ep1", url.Values{
		"feed":    {"other"},
		"name":    {"Alice"},
		"comment": {"Great episode!"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request.")

	// Same for a missing feed value.
	rec = postComment(env, "ep1", url.Values{
		"name":    {"Alice"},
		"comment": {"Great episode!"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	comments, err := env.store.CommentsForEpisode("ep1")
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestCommentSubmitUnpublishedEpisodeIsValidationError(t *testing.T) {
	env := newTestEnv(t)

	ep, err := env.store.GetEpisode("ep1")
	require.NoError(t, err)
	ep.Published = false
	require.NoError(t, env.store.SaveEpisode(ep))

	rec := postComment(env, "ep1", url.Values{
		"feed":    {"default"},
		"name":    {"Alice"},
		"comment": {"Great episode!"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request.")

	comments, err := env.store.CommentsForEpisode("ep1")
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestCommentSubmitUnknownEpisodeIs404(t *testing.T) {
	env := newTestEnv(t)

	rec := postComment(env, "nope", url.Values{
		"feed":    {"default"},
		"name":    {"Alice"},
		"comment": {"Great episode!"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentSubmitFieldValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := postComment(env, "ep1", url.Values{
		"feed":    {"default"},
		"name":    {""},
		"comment": {"ok"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Your name is required.")
	assert.Contains(t, body, "Your comment is too short.")

	// Whitespace does not count toward the minimum length.
	rec = postComment(env, "ep1", url.Values{
		"feed":    {"default"},
		"name":    {"Alice"},
		"comment": {"  a \n "},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = postComment(env, "ep1", url.Values{
		"feed":    {"default"},
		"name":    {strings.Repeat("x", 256)},
		"comment": {"Great episode!"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your name is too long.")

	comments, err := env.store.CommentsForEpisode("ep1")
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestCommentSubmitCreatesUnpublished(t *testing.T) {
	env := newTestEnv(t)

	rec := postComment(env, "ep1", url.Values{
		"feed":    {"default"},
		"name":    {"  Alice  "},
		"comment": {" Great episode! "},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/episodes/ep1", rec.Header().Get("Location"))

	comments, err := env.store.CommentsForEpisode("ep1")
	require.NoError(t, err)
	require.Len(t, comments, 1)

	c := comments[0]
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "ep1", c.EpisodeID)
	assert.Equal(t, "default", c.FeedID)
	assert.Equal(t, "Alice", c.Name)
	assert.Equal(t, "Great episode!", c.Body)
	assert.Equal(t, "plain_text", c.Format)
	assert.False(t, c.Published)
}
