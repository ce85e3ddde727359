package server

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"podhost/internal/models"
	"podhost/internal/store"
)

const maxCommentNameLen = 255
const minCommentBodyLen = 3

var episodeTmpl = template.Must(template.New("episode").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Episode.Title}}</title>
</head>
<body>
<article>
<h1>{{.Episode.Title}}</h1>
{{if .Episode.Subtitle}}<p class="subtitle">{{.Episode.Subtitle}}</p>{{end}}
<audio controls src="/download/{{.Episode.ID}}/{{.Episode.AssetID}}"></audio>
<div class="description">{{.Description}}</div>
</article>
<section id="comments">
<h2>Comments</h2>
{{range .Comments}}
<div class="comment">
<strong>{{.Name}}</strong>
<p>{{.Body}}</p>
</div>
{{else}}
<p>No comments yet.</p>
{{end}}
<p><a href="/episodes/{{.Episode.ID}}/comments/new?feed={{.Episode.FeedID}}">Leave a comment</a></p>
</section>
</body>
</html>
`))

var commentFormTmpl = template.Must(template.New("commentForm").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Comment on {{.Episode.Title}}</title>
</head>
<body>
<h1>Comment on {{.Episode.Title}}</h1>
<p>{{.Intro}}</p>
{{if .Errors}}
<ul class="errors">
{{range $field, $msg := .Errors}}<li>{{$msg}}</li>
{{end}}</ul>
{{end}}
<form method="post" action="/episodes/{{.Episode.ID}}/comments">
<input type="hidden" name="feed" value="{{.Episode.FeedID}}">
<label>Name <input type="text" name="name" maxlength="255" value="{{.Name}}"></label>
<label>Comment <textarea name="comment" rows="6">{{.Body}}</textarea></label>
<button type="submit">Submit</button>
</form>
<p><a href="/episodes/{{.Episode.ID}}">Back to episode</a></p>
</body>
</html>
`))

type episodePageData struct {
	Episode     models.Episode
	Description template.HTML
	Comments    []models.Comment
}

type commentFormData struct {
	Episode models.Episode
	Intro   string
	Name    string
	Body    string
	Errors  map[string]string
}

// handleEpisodes dispatches the /episodes/ routes: the episode page,
// the comment form, and the comment submission.
func (h *handler) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/episodes/")
	episodeID, tail, _ := strings.Cut(rest, "/")
	if episodeID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		h.serveEpisodePage(w, r, episodeID)
	case tail == "comments/new" && r.Method == http.MethodGet:
		h.serveCommentForm(w, r, episodeID)
	case tail == "comments" && r.Method == http.MethodPost:
		h.handleCommentSubmit(w, r, episodeID)
	case tail == "" || tail == "comments" || tail == "comments/new":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) serveEpisodePage(w http.ResponseWriter, r *http.Request, episodeID string) {
	ep, ok := h.publishedEpisode(w, episodeID)
	if !ok {
		return
	}

	all, err := h.store.CommentsForEpisode(ep.ID)
	if err != nil {
		h.logger.Printf("loading comments for %s: %v", ep.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var visible []models.Comment
	for _, c := range all {
		if c.Published {
			visible = append(visible, c)
		}
	}

	data := episodePageData{
		Episode:     ep,
		Description: descriptionHTML(ep.Description),
		Comments:    visible,
	}
	h.renderHTML(w, http.StatusOK, episodeTmpl, data)
}

func (h *handler) serveCommentForm(w http.ResponseWriter, r *http.Request, episodeID string) {
	ep, ok := h.commentContext(w, episodeID, r.URL.Query().Get("feed"))
	if !ok {
		return
	}
	h.renderHTML(w, http.StatusOK, commentFormTmpl, commentFormData{
		Episode: ep,
		Intro:   h.commentIntro,
	})
}

// handleCommentSubmit validates in two steps. Only a missing episode
// is a 404; a wrong feed value or an unpublished episode on the posted
// form is a validation failure like any other field error.
func (h *handler) handleCommentSubmit(w http.ResponseWriter, r *http.Request, episodeID string) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ep, err := h.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, store.ErrEpisodeNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			h.logger.Printf("loading episode %s: %v", episodeID, err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	name := strings.TrimSpace(r.PostFormValue("name"))
	body := strings.TrimSpace(r.PostFormValue("comment"))

	fieldErrors := map[string]string{}
	validContext, err := h.validCommentTarget(ep, r.PostFormValue("feed"))
	if err != nil {
		h.logger.Printf("checking feed for episode %s: %v", ep.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !validContext {
		fieldErrors["context"] = "Invalid request."
	}
	if name == "" {
		fieldErrors["name"] = "Your name is required."
	} else if len(name) > maxCommentNameLen {
		fieldErrors["name"] = "Your name is too long."
	}
	if len(body) < minCommentBodyLen {
		fieldErrors["comment"] = "Your comment is too short."
	}

	if len(fieldErrors) > 0 {
		h.renderHTML(w, http.StatusUnprocessableEntity, commentFormTmpl, commentFormData{
			Episode: ep,
			Intro:   h.commentIntro,
			Name:    name,
			Body:    body,
			Errors:  fieldErrors,
		})
		return
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		EpisodeID: ep.ID,
		FeedID:    ep.FeedID,
		Name:      name,
		Body:      body,
		Format:    "plain_text",
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveComment(comment); err != nil {
		h.logger.Printf("saving comment on %s: %v", ep.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/episodes/"+ep.ID, http.StatusSeeOther)
}

// validCommentTarget reports whether the posted feed value names the
// episode's own feed and that feed is still configured.
func (h *handler) validCommentTarget(ep models.Episode, feedID string) (bool, error) {
	if !ep.Published || feedID == "" || ep.FeedID != feedID {
		return false, nil
	}
	return h.store.HasFeed(feedID)
}

// commentContext loads the episode and checks that commenting on it
// under the named feed makes sense. Used on the form resolution route,
// where a bad context is a 404, the same as a missing page.
func (h *handler) commentContext(w http.ResponseWriter, episodeID, feedID string) (models.Episode, bool) {
	ep, ok := h.publishedEpisode(w, episodeID)
	if !ok {
		return models.Episode{}, false
	}
	if feedID == "" || ep.FeedID != feedID {
		w.WriteHeader(http.StatusNotFound)
		return models.Episode{}, false
	}
	if exists, err := h.store.HasFeed(feedID); err != nil || !exists {
		if err != nil {
			h.logger.Printf("checking feed %s: %v", feedID, err)
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
		return models.Episode{}, false
	}
	return ep, true
}

func (h *handler) publishedEpisode(w http.ResponseWriter, episodeID string) (models.Episode, bool) {
	ep, err := h.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, store.ErrEpisodeNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			h.logger.Printf("loading episode %s: %v", episodeID, err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return models.Episode{}, false
	}
	if !ep.Published {
		w.WriteHeader(http.StatusNotFound)
		return models.Episode{}, false
	}
	return ep, true
}

func (h *handler) renderHTML(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Printf("rendering %s: %v", tmpl.Name(), err)
	}
}

// descriptionHTML trusts rich descriptions as markup and escapes plain
// text ones.
func descriptionHTML(text models.RichText) template.HTML {
	if text.Format == "plain_text" {
		escaped := template.HTMLEscapeString(text.Value)
		return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
	}
	return template.HTML(text.Value)
}
