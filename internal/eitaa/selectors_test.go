package eitaa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiteral(t *testing.T) {
	assert.Equal(t, `"abc"`, Literal("abc"))
	assert.Equal(t, `'say "hi"'`, Literal(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "x", '"')`, Literal(`it's "x"`))
}

func TestGroupEntryIsExactTitle(t *testing.T) {
	sel := GroupEntry("  تحویل بار ")
	assert.True(t, strings.HasPrefix(sel, "(//li["))
	assert.Contains(t, sel, `normalize-space(.) = "تحویل بار"`)
	assert.True(t, strings.HasSuffix(sel, ")[1]"))
}

func TestDirectEntryMentionsHandle(t *testing.T) {
	sel := DirectEntry("@alice")
	assert.Contains(t, sel, lowerText+` = "@alice"`)
	assert.Contains(t, sel, "user-last-message")
}

func TestDirectEntryMatchesWholeHandle(t *testing.T) {
	sel := DirectEntry("@ali")
	assert.Contains(t, sel, `= "@ali"]`)
	assert.NotContains(t, sel, "contains(.,", "a prefix match would select @alice for @ali")
	assert.NotContains(t, sel, "starts-with(")

	assert.Equal(t, sel, DirectEntry("  @ALI "), "handles compare case-insensitively")
}

func TestBubbleTextIsOneBased(t *testing.T) {
	assert.True(t, strings.HasPrefix(BubbleText(0), "("+Bubbles()+")[1]"))
	assert.True(t, strings.HasPrefix(BubbleText(4), "("+Bubbles()+")[5]"))
}

func TestClassMatchesWholeToken(t *testing.T) {
	assert.Equal(t, `contains(concat(' ', normalize-space(@class), ' '), ' bubble ')`, class("bubble"))
}
