package process

import (
	"strings"
	"sync"
)

// maxLineBytes caps one retained line. rsync --progress output without a
// newline would otherwise grow the partial line for the whole transfer.
const maxLineBytes = 4096

// tailBuffer is an io.Writer that keeps the last max lines written to it.
// stdout and stderr share one tailBuffer, so writes are serialized.
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial strings.Builder
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			b.appendPartial(s)
			break
		}
		b.appendPartial(s[:i])
		b.push(strings.TrimRight(b.partial.String(), "\r"))
		b.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

// appendPartial adds s to the current line, dropping what exceeds
// maxLineBytes.
func (b *tailBuffer) appendPartial(s string) {
	if room := maxLineBytes - b.partial.Len(); len(s) > room {
		s = s[:max(room, 0)]
	}
	b.partial.WriteString(s)
}

func (b *tailBuffer) push(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

// Lines returns the retained lines, including an unterminated last line.
func (b *tailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.lines), len(b.lines)+1)
	copy(out, b.lines)
	if b.partial.Len() > 0 {
		out = append(out, b.partial.String())
	}
	return out
}
