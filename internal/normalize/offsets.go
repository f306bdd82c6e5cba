package normalize

import (
	"strings"

	"github.com/danmuck/gymon/internal/command"
)

// OffsetSource formats the offsets of one instance.
type OffsetSource interface {
	Offsets(instance int) (string, error)
}

// Offsets answers an offset command without invoking the control tool.
// Without an instance every instance is reported in ascending order and the
// first failure discards all partial results.
func Offsets(cmd command.Command, src OffsetSource) (string, error) {
	if n, ok := cmd.Instance(); ok {
		return src.Offsets(n)
	}
	var b strings.Builder
	for n := command.MinInstance; n <= command.MaxInstance; n++ {
		s, err := src.Offsets(n)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}
