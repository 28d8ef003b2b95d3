package relay

import (
	"regexp"
	"strings"
)

// NodeKind tags one parsed token of a platform's inline markup grammar.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeUserMention
	NodeRoleMention
	NodeChannelMention
	NodeSlashRef
	NodeCustomEmoji
	NodeTimestamp
	NodeQQEmoji
)

// Node is one run of a parsed message body. Text carries the literal content
// for NodeText; ID carries the referenced entity id for the mention kinds;
// Name/Animated are set for Discord custom emoji; Raw always carries the
// original token so unparseable constructs can pass through verbatim.
type Node struct {
	Kind     NodeKind
	Text     string
	ID       string
	Name     string
	Animated bool
	Raw      string
}

// discordTokenRE is the embedding grammar for Discord rich text: user
// mentions <@id>/<@!id>, role mentions <@&id>, channel mentions <#id>, slash
// command references </name:id>, custom emoji <:name:id>/<a:name:id> and
// timestamps <t:unix[:style]>.
var discordTokenRE = regexp.MustCompile(`<(@!|@&|@|#|/|:|a:|t:)(.+?)>`)

// ParseDiscordMarkup splits a Discord message body into markup nodes. Plain
// text between tokens is preserved as NodeText runs in order.
func ParseDiscordMarkup(content string) []Node {
	var nodes []Node
	last := 0
	for _, m := range discordTokenRE.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], m[1]
		if start > last {
			nodes = append(nodes, Node{Kind: NodeText, Text: content[last:start]})
		}
		last = end
		raw := content[start:end]
		kind := content[m[2]:m[3]]
		param := content[m[4]:m[5]]

		switch kind {
		case "@!", "@":
			nodes = append(nodes, Node{Kind: NodeUserMention, ID: param, Raw: raw})
		case "@&":
			nodes = append(nodes, Node{Kind: NodeRoleMention, ID: param, Raw: raw})
		case "#":
			nodes = append(nodes, Node{Kind: NodeChannelMention, ID: param, Raw: raw})
		case "/":
			nodes = append(nodes, Node{Kind: NodeSlashRef, ID: param, Raw: raw})
		case ":", "a:":
			name, id, ok := splitEmojiParam(param)
			if !ok {
				nodes = append(nodes, Node{Kind: NodeText, Text: raw, Raw: raw})
				break
			}
			nodes = append(nodes, Node{
				Kind:     NodeCustomEmoji,
				Name:     name,
				ID:       id,
				Animated: kind == "a:",
				Raw:      raw,
			})
		case "t:":
			nodes = append(nodes, Node{Kind: NodeTimestamp, ID: param, Raw: raw})
		}
	}
	if last < len(content) {
		nodes = append(nodes, Node{Kind: NodeText, Text: content[last:]})
	}
	return nodes
}

func splitEmojiParam(param string) (name, id string, ok bool) {
	cut := strings.Split(param, ":")
	if len(cut) != 2 {
		return "", "", false
	}
	return cut[0], cut[1], true
}

// qqTokenRE matches QQ guild markup: user mentions <@!id>/<@id> and system
// face emoji <emoji:id>.
var qqTokenRE = regexp.MustCompile(`<@!?(\d+)>|<emoji:(\d+)>`)

// ParseQQMarkup splits a QQ guild message body into markup nodes.
func ParseQQMarkup(content string) []Node {
	var nodes []Node
	last := 0
	for _, m := range qqTokenRE.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], m[1]
		if start > last {
			nodes = append(nodes, Node{Kind: NodeText, Text: content[last:start]})
		}
		last = end
		raw := content[start:end]
		if m[2] >= 0 {
			nodes = append(nodes, Node{Kind: NodeUserMention, ID: content[m[2]:m[3]], Raw: raw})
		} else {
			nodes = append(nodes, Node{Kind: NodeQQEmoji, ID: content[m[4]:m[5]], Raw: raw})
		}
	}
	if last < len(content) {
		nodes = append(nodes, Node{Kind: NodeText, Text: content[last:]})
	}
	return nodes
}
