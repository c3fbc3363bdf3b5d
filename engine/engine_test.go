package engine

import (
	"sync"
	"testing"

	"github.com/elum-utils/warden/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDefaultPatterns(t *testing.T) {
	assert := assert.New(t)
	e := NewDefault()

	fixtures := []struct {
		text string
		hit  bool
		form models.Form
	}{
		{text: "", hit: false},
		{text: "Hello world", hit: false},
		{text: "!!! ??? ...", hit: false},
		{text: "123 456", hit: false},
		{text: "nigger", hit: true, form: models.FormRaw},
		{text: "faggot", hit: true, form: models.FormRaw},
		{text: "FAGGOT", hit: true, form: models.FormRaw},
		{text: "n1gg3r", hit: true, form: models.FormRaw},
		{text: "f4gg0t", hit: true, form: models.FormRaw},
		{text: "f@g9ot", hit: true, form: models.FormRaw},
		{text: "n-i-g-g-e-r", hit: true, form: models.FormNormalized},
		{text: "f.a.g.g.o.t", hit: true, form: models.FormNormalized},
		{text: "n i g g e r", hit: true, form: models.FormNormalized},
		{text: "nïggér", hit: true, form: models.FormNormalized},
		{text: "fåggøt", hit: true, form: models.FormNormalized},
		{text: "ｎｉｇｇｅｒ", hit: true, form: models.FormNormalized},
		{text: "you are a faggot!", hit: true, form: models.FormRaw},
		{text: "n\u0456gger", hit: true, form: models.FormNormalized},
		{text: "f\u0430ggot", hit: true, form: models.FormNormalized},
		{text: "nigg\u0435r", hit: true, form: models.FormNormalized},
		{text: "f\u03b1gg\u03bft", hit: true, form: models.FormNormalized},
		{text: "\U0001F15D\U0001F158\U0001F156\U0001F156\U0001F154\U0001F161", hit: true, form: models.FormNormalized},
		{text: "\U0001F135\U0001F130\U0001F136\U0001F136\U0001F13E\U0001F143", hit: true, form: models.FormNormalized},
		{text: "\u24DD\u24D8\u24D6\u24D6\u24D4\u24E1", hit: true, form: models.FormNormalized},
		{text: "\u043f\u0440\u0438\u0432\u0435\u0442", hit: false},
	}

	for _, fix := range fixtures {
		v := e.Detect(fix.text)
		assert.Equal(fix.hit, v.Matched, fix.text)
		assert.Equal(fix.hit, e.Contains(fix.text), fix.text)
		if fix.hit {
			assert.Equal(fix.form, v.Form, fix.text)
			assert.NotEmpty(v.Pattern, fix.text)
		} else {
			assert.Equal(-1, v.Index, fix.text)
		}
	}
}

func TestDetectReportsPatternIndex(t *testing.T) {
	e := NewDefault()
	assert.Equal(t, 0, e.Detect("nigger").Index)
	assert.Equal(t, 1, e.Detect("faggot").Index)
}

func TestDetectWithoutPatterns(t *testing.T) {
	e := New()
	assert.False(t, e.Contains("nigger"))
	assert.Equal(t, 0, e.Count())
}

func TestLoadSkipsBlankAndDuplicates(t *testing.T) {
	e := New()
	require.NoError(t, e.Load([]string{"abc", " ", "abc", "x+y"}))
	assert.Equal(t, []string{"abc", "x+y"}, e.Patterns())
}

func TestLoadInvalidPatternKeepsPreviousSet(t *testing.T) {
	e := NewDefault()
	err := e.Load([]string{"ok", "(unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern 1")
	assert.Equal(t, DefaultPatterns, e.Patterns())
}

func TestStats(t *testing.T) {
	e := NewDefault()
	e.Detect("hello")
	e.Detect("n1gg3r")

	s := e.Stats()
	assert.Equal(t, int64(2), s.PatternCount)
	assert.Equal(t, int64(2), s.TotalLookups)
	assert.Equal(t, int64(1), s.TotalMatches)
	assert.Equal(t, int64(1), s.TotalReloadCount)
}

func TestEngineConcurrentAccess(t *testing.T) {
	e := NewDefault()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = e.Contains("f 4 g g 0 t")
			if i%10 == 0 {
				_ = e.Load(DefaultPatterns)
			}
		}(i)
	}
	wg.Wait()
}
