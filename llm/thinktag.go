// Incremental demultiplexer for the "think" pseudo-tag some OpenAI-compatible
// backends embed in plain content. The parser is fed stream chunks of any
// size and routes text inside <think>...</think> to the reasoning channel;
// tags split across chunk boundaries are handled by buffering the longest
// suffix that could still be a tag prefix.
package llm

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

type thinkParser struct {
	inThink bool
	pending string
}

// feed processes one stream chunk, emitting demuxed text.
func (p *thinkParser) feed(chunk string, emit func(channel Channel, text string)) {
	text := p.pending + chunk
	p.pending = ""

	for text != "" {
		tag := thinkOpenTag
		channel := ChannelContent
		if p.inThink {
			tag = thinkCloseTag
			channel = ChannelReasoning
		}

		if idx := strings.Index(text, tag); idx >= 0 {
			if idx > 0 {
				emit(channel, text[:idx])
			}
			text = text[idx+len(tag):]
			p.inThink = !p.inThink
			continue
		}

		// No full tag; hold back a suffix that could be the start of one.
		hold := tagPrefixLen(text, tag)
		if cut := len(text) - hold; cut > 0 {
			emit(channel, text[:cut])
		}
		p.pending = text[len(text)-hold:]
		return
	}
}

// flush emits any held-back text once the stream has ended. A dangling
// partial tag is plain content at that point.
func (p *thinkParser) flush(emit func(channel Channel, text string)) {
	if p.pending == "" {
		return
	}
	channel := ChannelContent
	if p.inThink {
		channel = ChannelReasoning
	}
	emit(channel, p.pending)
	p.pending = ""
}

// tagPrefixLen returns the length of the longest proper suffix of text that
// is a prefix of tag.
func tagPrefixLen(text, tag string) int {
	max := len(tag) - 1
	if max > len(text) {
		max = len(text)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(tag, text[len(text)-n:]) {
			return n
		}
	}
	return 0
}
