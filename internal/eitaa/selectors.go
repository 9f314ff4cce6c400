// Package eitaa holds the web.eitaa.com DOM selectors. Everything that knows
// the client's markup lives here so the orchestrators only speak in roles.
package eitaa

import (
	"fmt"
	"strings"
)

const DefaultURL = "https://web.eitaa.com/"

// Login.
const (
	// ChatList only exists once the account is signed in.
	ChatList   = "#chatlist-container"
	PhoneInput = `input[name="phone_number"], .input-field-phone .input-field-input`
	OTPInput   = `input[name="phone_code"], .input-field-code input, input[autocomplete="one-time-code"]`
)

// Chat list and conversations.
const (
	SearchInput   = `input.input-search-input[placeholder="جستجو"]`
	ComposeBox    = `div.input-message-input[contenteditable="true"]:not(.input-field-input-fake)`
	BubbleContent = ".bubble-content"
	ScrollPane    = `(//div[contains(@class, "bubbles")]/div[contains(@class, "scrollable-y")])[1]`
)

// Contacts sidebar.
const (
	AddContactButton  = "button.btn-circle.btn-corner.tgico-add.rp"
	BackButton        = "button.btn-icon.tgico-left.sidebar-close-button"
	MenuToggle        = "div.btn-icon.btn-menu-toggle.rp.sidebar-tools-button.is-visible"
	MenuToggleAlt     = "div.animated-menu-icon"
	ContactsMenuItem  = "div.btn-menu-item.tgico-user.rp"
	ContactPhoneField = "div.input-field.input-field-phone div.input-field-input"
)

var (
	ContactNameField = fmt.Sprintf(`(//div[%s][.//label[contains(., %s)]]//div[%s])[1]`,
		class("input-field"), Literal("نام"), class("input-field-input"))
	ContactSubmit = fmt.Sprintf(`(//button[%s and %s and %s][contains(., %s)])[1]`,
		class("btn-primary"), class("btn-color-primary"), class("rp"), Literal("افزودن"))

	bubbles = fmt.Sprintf(`//div[%s]`, class("bubble"))
)

// Bubbles matches every rendered message bubble in the open chat, oldest
// first in document order.
func Bubbles() string { return bubbles }

// BubbleText selects the message body of the index-th (0-based) bubble.
func BubbleText(index int) string {
	return fmt.Sprintf(`(%s)[%d]//div[%s]`, bubbles, index+1, class("message"))
}

// GroupEntry selects the first chat-list entry whose title is exactly title.
func GroupEntry(title string) string {
	return fmt.Sprintf(`(//li[%s and %s][.//span[%s]/i[normalize-space(.) = %s]])[1]`,
		class("rp"), class("chatlist-chat"), class("peer-title"), Literal(strings.TrimSpace(title)))
}

// DirectEntry selects the search result whose subtitle is exactly handle,
// ignoring ASCII case, which is how the client lists users found by
// @username. "@ali" never matches an entry showing "@alice".
func DirectEntry(handle string) string {
	return fmt.Sprintf(`(//li[%s and %s][.//p[%s]/span[%s]/i[%s = %s]])[1]`,
		class("rp"), class("chatlist-chat"), class("dialog-subtitle"), class("user-last-message"),
		lowerText, Literal(strings.ToLower(strings.TrimSpace(handle))))
}

// lowerText is the XPath 1.0 lowercase of the context node's trimmed text.
const lowerText = `translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz')`

// class is the XPath test for a whole token in the class attribute.
func class(name string) string {
	return fmt.Sprintf(`contains(concat(' ', normalize-space(@class), ' '), ' %s ')`, name)
}

// Literal quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func Literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
