package progress

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"trojascan/format"
)

// Bar is a counter progress bar ("loading models  42% ▕███   ▏ (12/28)").
// Set may be called from concurrent workers.
type Bar struct {
	message  string
	maxValue int64
	current  atomic.Int64

	started time.Time
}

func NewBar(message string, maxValue int64) *Bar {
	return &Bar{
		message:  message,
		maxValue: maxValue,
		started:  time.Now(),
	}
}

func (b *Bar) Set(value int64) {
	if value > b.maxValue {
		value = b.maxValue
	}
	b.current.Store(value)
}

func (b *Bar) Increment() {
	b.current.Add(1)
}

func (b *Bar) percent() float64 {
	if b.maxValue > 0 {
		return float64(b.current.Load()) / float64(b.maxValue) * 100
	}
	return 0
}

// formatDuration limits the rendering of a time.Duration to 2 units
func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return d.Round(time.Second).String()
}

func (b *Bar) String() string {
	termWidth, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		termWidth = 80
	}

	var pre, mid, suf strings.Builder

	if b.message != "" {
		fmt.Fprintf(&pre, "%s ", strings.TrimSpace(b.message))
	}
	fmt.Fprintf(&pre, "%3.0f%% ", math.Floor(b.percent()))

	current := b.current.Load()
	fmt.Fprintf(&suf, " (%s/%s", format.HumanNumber(uint64(current)), format.HumanNumber(uint64(b.maxValue)))
	if current > 0 && current < b.maxValue {
		fmt.Fprintf(&suf, ", %s elapsed", formatDuration(time.Since(b.started)))
	}
	fmt.Fprintf(&suf, ")")

	// 3 extra characters: 2 boundary runes and a trailing space
	f := termWidth - pre.Len() - suf.Len() - 3
	n := int(float64(f) * b.percent() / 100)

	if f > 0 {
		mid.WriteString("▕")
		mid.WriteString(strings.Repeat("█", n))
		if f-n > 0 {
			mid.WriteString(strings.Repeat(" ", f-n))
		}
		mid.WriteString("▏")
	}

	return pre.String() + mid.String() + suf.String()
}
