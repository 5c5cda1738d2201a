package executor

import (
	"bytes"
	"encoding/json"
	"strconv"
)

const (
	consoleTextCap   = 2000
	consoleToolCap   = 500
	consoleResultCap = 2000
)

// streamEvent is the tagged-union shape of one line of the CLI's
// line-delimited JSON stdout. Only the fields each event type actually
// carries are populated; everything else decodes to its zero value.
type streamEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type    string `json:"type"`
		Name    string `json:"name,omitempty"`
		Content string `json:"content,omitempty"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Result    string `json:"result,omitempty"`
}

// block accumulates one content_block_start..content_block_stop span.
type block struct {
	kind    string // "text" or "tool_result"
	content string
}

// streamParser is the single object driving the three event machines
// described for the AI Executor: progress, console accumulation, and
// session-id/result capture. It is fed raw stdout chunks and handles one
// complete line at a time.
type streamParser struct {
	onProgress func(Progress)
	onConsole  func(ConsoleEvent)

	buf []byte // undecoded carry-over bytes between feed calls

	toolCounter int
	current     *block
	raw         []byte // fallback canonical text if no result event arrives
	sessionID   string
	result      string
	gotResult   bool
}

func newStreamParser(onProgress func(Progress), onConsole func(ConsoleEvent)) *streamParser {
	return &streamParser{onProgress: onProgress, onConsole: onConsole}
}

// feed appends newly-read bytes (one or more lines, not necessarily
// newline-terminated) and processes every complete line found.
func (p *streamParser) feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			return
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		p.handleLine(line)
	}
}

func (p *streamParser) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	p.raw = append(p.raw, line...)
	p.raw = append(p.raw, '\n')

	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		// Non-JSON line: skipped by the event machines, kept in raw.
		return
	}

	switch ev.Type {
	case "content_block_start":
		p.handleBlockStart(ev)
	case "content_block_delta":
		p.handleBlockDelta(ev)
	case "content_block_stop":
		p.flushBlock()
	case "result":
		p.handleResult(ev)
	}
}

func (p *streamParser) handleBlockStart(ev streamEvent) {
	if ev.ContentBlock == nil {
		return
	}
	switch ev.ContentBlock.Type {
	case "tool_use":
		p.toolCounter++
		msg := "Step " + strconv.Itoa(p.toolCounter) + ": Using " + ev.ContentBlock.Name + "..."
		p.emitProgress(Progress{Fraction: nil, Message: msg, IsToolUse: true})
		p.emitConsole(ConsoleEvent{Type: "tool_call", Content: truncate(msg, consoleTextCap)})
	case "text":
		p.current = &block{kind: "text"}
	case "tool_result":
		p.current = &block{kind: "tool_result", content: ev.ContentBlock.Content}
	}
}

func (p *streamParser) handleBlockDelta(ev streamEvent) {
	if p.current == nil || ev.Delta == nil {
		return
	}
	if ev.Delta.Type == "text_delta" {
		p.current.content += ev.Delta.Text
	}
}

func (p *streamParser) flushBlock() {
	if p.current == nil {
		return
	}
	b := p.current
	p.current = nil
	switch b.kind {
	case "text":
		p.emitConsole(ConsoleEvent{Type: "assistant_text", Content: truncate(b.content, consoleTextCap)})
	case "tool_result":
		p.emitConsole(ConsoleEvent{Type: "tool_result", Content: truncate(b.content, consoleToolCap)})
	}
}

func (p *streamParser) handleResult(ev streamEvent) {
	p.flushBlock()
	if ev.SessionID != "" {
		p.sessionID = ev.SessionID
	}
	if ev.Result != "" {
		p.result = ev.Result
		p.gotResult = true
	}
	p.emitProgress(Progress{Fraction: floatPtr(1.0), Message: "Completed", IsToolUse: false})
	p.emitConsole(ConsoleEvent{Type: "result", Content: truncate(ev.Result, consoleResultCap)})
}

func (p *streamParser) emitProgress(pr Progress) {
	if p.onProgress != nil {
		p.onProgress(pr)
	}
}

func (p *streamParser) emitConsole(c ConsoleEvent) {
	if p.onConsole != nil {
		p.onConsole(c)
	}
}

// canonicalResult returns the result event's text, preferred over raw
// stdout as the final outcome.
func (p *streamParser) canonicalResult() string {
	if p.gotResult {
		return p.result
	}
	return ""
}

// rawText is the fallback canonical stdout when no result event captured
// final text.
func (p *streamParser) rawText() string {
	return string(p.raw)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func floatPtr(f float64) *float64 { return &f }
