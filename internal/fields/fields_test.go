package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podhost/internal/models"
)

func emptySettings() models.FeedSettings {
	return models.FeedSettings{Label: "Test", Values: map[string]string{}}
}

func TestApplyDefaults(t *testing.T) {
	out, warned, err := Apply(DefaultDefinitions(), map[string]string{}, emptySettings())
	require.NoError(t, err)
	assert.False(t, warned)
	assert.Equal(t, "en", out.Values["podcast_language"])
	assert.Equal(t, "episodic", out.Values["itunes_type"])
	assert.Equal(t, "false", out.Values["itunes_explicit"])
	assert.Equal(t, "", out.Values["podcast_title"])
	assert.Equal(t, "Test", out.Label)
}

func TestApplyFlattensGroupChildren(t *testing.T) {
	values := map[string]string{
		"podcast_owner_name":  "Harmonia",
		"podcast_owner_email": "pod@example.org",
	}
	out, _, err := Apply(DefaultDefinitions(), values, emptySettings())
	require.NoError(t, err)
	assert.Equal(t, "Harmonia", out.Values["podcast_owner_name"])
	assert.Equal(t, "pod@example.org", out.Values["podcast_owner_email"])
	// The group itself has no value of its own.
	assert.NotContains(t, out.Values, "itunes_owner")
}

func TestApplySanitizesAndWarnsOnce(t *testing.T) {
	values := map[string]string{
		"podcast_title":    "The “Big” Show",
		"itunes_author":    "José — Host",
		"podcast_keywords": "music, talk",
	}
	out, warned, err := Apply(DefaultDefinitions(), values, emptySettings())
	require.NoError(t, err)
	assert.True(t, warned)
	assert.Equal(t, `The "Big" Show`, out.Values["podcast_title"])
	assert.Equal(t, "Jose -- Host", out.Values["itunes_author"])
	assert.Equal(t, "music, talk", out.Values["podcast_keywords"])
}

func TestApplyRichTextKeepsFormat(t *testing.T) {
	values := map[string]string{
		"podcast_description":        "<p>Weekly “news”.</p>",
		"podcast_description_format": "full_html",
	}
	out, _, err := Apply(DefaultDefinitions(), values, emptySettings())
	require.NoError(t, err)
	assert.Equal(t, `<p>Weekly "news".</p>`, out.Values["podcast_description"])
	assert.Equal(t, "full_html", out.Values["podcast_description_format"])
}

func TestApplyRejectsUnknownSelectOption(t *testing.T) {
	values := map[string]string{"itunes_type": "weekly"}
	_, _, err := Apply(DefaultDefinitions(), values, emptySettings())
	require.Error(t, err)
}

func TestApplyPreservesCurrentValuesWhenAbsent(t *testing.T) {
	current := models.FeedSettings{
		Label: "Kept",
		Values: map[string]string{
			"podcast_title": "Existing Title",
		},
	}
	out, _, err := Apply(DefaultDefinitions(), map[string]string{"itunes_author": "New Author"}, current)
	require.NoError(t, err)
	assert.Equal(t, "Existing Title", out.Values["podcast_title"])
	assert.Equal(t, "New Author", out.Values["itunes_author"])
}

func TestApplyDoesNotLeakAcrossBags(t *testing.T) {
	one, _, err := Apply(DefaultDefinitions(), map[string]string{"podcast_title": "One"}, emptySettings())
	require.NoError(t, err)
	two, _, err := Apply(DefaultDefinitions(), map[string]string{}, emptySettings())
	require.NoError(t, err)
	assert.Equal(t, "One", one.Values["podcast_title"])
	assert.Equal(t, "", two.Values["podcast_title"])
}
