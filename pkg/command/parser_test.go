package command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

func TestParser_Parse(t *testing.T) {
	p := NewParser()

	res := p.Parse("  /Mode   rag ")
	assert.True(t, res.IsCommand)
	assert.Equal(t, []string{"mode", "rag"}, res.Tokens)
	assert.Equal(t, "rag", res.ArgumentRaw)

	res = p.Parse("/eval")
	assert.True(t, res.IsCommand)
	assert.Equal(t, []string{"eval"}, res.Tokens)
	assert.Empty(t, res.ArgumentRaw)

	for _, text := range []string{"", "   ", "hello /mode", "/", "/ mode"} {
		assert.False(t, p.Parse(text).IsCommand, "text %q", text)
	}

	custom := Parser{Prefix: "!"}
	assert.True(t, custom.Parse("!reset").IsCommand)
	assert.False(t, custom.Parse("/reset").IsCommand)
}

func TestParser_MatcherOnlyAcceptsCommands(t *testing.T) {
	match := NewParser().Matcher()
	assert.True(t, match(botcore.Update{Text: "/mode rag"}))
	assert.True(t, match(botcore.Update{Text: "  /eval"}))
	for _, text := range []string{"/", "/ hello", " / ", "hello", ""} {
		assert.False(t, match(botcore.Update{Text: text}), "text %q", text)
	}
}
