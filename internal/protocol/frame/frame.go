package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// EndMarker terminates every client request.
	EndMarker = "#end"
	// ReplyMarker opens and closes every server reply.
	ReplyMarker = "#tcl"
	// TimestampLayout stamps the opening reply marker.
	TimestampLayout = "20060102150405"
	// LineEnding terminates every reply line.
	LineEnding = "\r\n"
)

const (
	DefaultCapacity = 1024
	MinCapacity     = 16
	MaxCapacity     = 4096
)

var (
	ErrFrameTooLarge   = errors.New("frame: request exceeds buffer capacity")
	ErrInvalidCapacity = errors.New("frame: invalid buffer capacity")
	ErrMalformedReply  = errors.New("frame: malformed reply")
	ErrReplyTooLarge   = errors.New("frame: reply too large")
)

const (
	maxReplyBytes       = 1 << 20
	replyTerminatorLine = ReplyMarker + LineEnding
)

var endMarkerBytes = []byte(EndMarker)

// Buffer accumulates request bytes until EndMarker arrives.
// One byte of capacity is held back so a full buffer without a marker is
// distinguishable from a frame that fills it exactly.
type Buffer struct {
	data []byte
	fill int
}

func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidCapacity, capacity, MinCapacity, MaxCapacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

func (b *Buffer) Capacity() int {
	return len(b.data)
}

func (b *Buffer) Len() int {
	return b.fill
}

// Limit is the highest fill the buffer accepts.
func (b *Buffer) Limit() int {
	return len(b.data) - 1
}

// ReadFrom performs a single Read into the free tail of the buffer.
func (b *Buffer) ReadFrom(r io.Reader) (int, error) {
	if b.fill >= b.Limit() {
		return 0, ErrFrameTooLarge
	}
	n, err := r.Read(b.data[b.fill:b.Limit()])
	if n > 0 {
		b.fill += n
	}
	return n, err
}

// Next extracts one complete request. ok is false while the marker is
// still missing; ErrFrameTooLarge reports a full buffer with no marker.
// The buffer is emptied after a frame is taken, discarding any bytes that
// followed the marker.
func (b *Buffer) Next() (string, bool, error) {
	idx := bytes.Index(b.data[:b.fill], endMarkerBytes)
	if idx >= 0 {
		req := string(b.data[:idx])
		b.Reset()
		return req, true, nil
	}
	if b.fill >= b.Limit() {
		return "", false, ErrFrameTooLarge
	}
	return "", false, nil
}

// Reset clears buffered bytes.
func (b *Buffer) Reset() {
	clear(b.data[:b.fill])
	b.fill = 0
}

// EncodeReply wraps body in the reply markers stamped with now.
func EncodeReply(body string, now time.Time) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	buf.WriteString(ReplyMarker)
	buf.WriteString(now.Format(TimestampLayout))
	buf.WriteString(LineEnding)
	buf.WriteString(body)
	buf.WriteString(LineEnding)
	buf.WriteString(ReplyMarker)
	buf.WriteString(LineEnding)
	return buf.Bytes()
}

// EncodeRequest appends the end marker to text.
func EncodeRequest(text string) []byte {
	return []byte(text + EndMarker)
}

// Reply is one decoded server reply.
type Reply struct {
	Stamp time.Time
	Body  string
}

// IsError reports whether the reply body is an error line.
func (r Reply) IsError() bool {
	return strings.HasPrefix(r.Body, "ERROR:")
}

// ReadReply decodes one reply frame from r.
func ReadReply(r *bufio.Reader) (Reply, error) {
	head, err := r.ReadString('\n')
	if err != nil {
		return Reply{}, err
	}
	if !strings.HasPrefix(head, ReplyMarker) || !strings.HasSuffix(head, LineEnding) {
		return Reply{}, fmt.Errorf("%w: header %q", ErrMalformedReply, head)
	}
	stampText := strings.TrimSuffix(strings.TrimPrefix(head, ReplyMarker), LineEnding)
	stamp, err := time.ParseInLocation(TimestampLayout, stampText, time.Local)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: timestamp %q", ErrMalformedReply, stampText)
	}

	var body strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Reply{}, fmt.Errorf("%w: missing closing marker", ErrMalformedReply)
			}
			return Reply{}, err
		}
		if line == replyTerminatorLine {
			break
		}
		body.WriteString(line)
		if body.Len() > maxReplyBytes {
			return Reply{}, ErrReplyTooLarge
		}
	}
	text := body.String()
	if !strings.HasSuffix(text, LineEnding) {
		return Reply{}, fmt.Errorf("%w: unterminated body", ErrMalformedReply)
	}
	return Reply{Stamp: stamp, Body: strings.TrimSuffix(text, LineEnding)}, nil
}
