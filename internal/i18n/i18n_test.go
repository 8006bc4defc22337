package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	assert.Equal(t, language.Russian, Match("ru-RU,ru;q=0.9,en;q=0.8"))
	assert.Equal(t, language.English, Match("en-GB"))
	assert.Equal(t, language.English, Match("de-DE"))
	assert.Equal(t, language.English, Match(""))
}

func TestT(t *testing.T) {
	assert.Equal(t, "Please enter a prompt.", T(language.English, "error.prompt_required"))
	assert.Equal(t, "Введите описание.", T(language.Russian, "error.prompt_required"))
	assert.Equal(t, "The reference image is too large (max 5 MB).", T(language.English, "error.reference_too_large", 5))
	assert.True(t, Has("error.too_frequent"))
	assert.False(t, Has("error.nope"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Portrait Studio", Title(language.English, "portrait studio"))
}
