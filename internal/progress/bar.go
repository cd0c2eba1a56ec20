package progress

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

const (
	DefaultBarMax   = 100.0
	DefaultBarColor = "#4CAF50"
	defaultBarWidth = 30
)

// BarOption configures a Bar at construction
type BarOption func(*Bar)

// WithValue sets the initial value (clamped to the bar's maximum)
func WithValue(value float64) BarOption {
	return func(b *Bar) { b.value = value }
}

// WithMax sets the maximum; values below 1 become 1
func WithMax(max float64) BarOption {
	return func(b *Bar) { b.max = math.Max(1, max) }
}

// WithColor sets the fill color
func WithColor(color string) BarOption {
	return func(b *Bar) {
		if color != "" {
			b.color = color
		}
	}
}

// WithLabel sets the label rendered before the bar
func WithLabel(label string) BarOption {
	return func(b *Bar) { b.label = label }
}

// WithShowPercentage toggles the trailing percentage text
func WithShowPercentage(show bool) BarOption {
	return func(b *Bar) { b.showPercentage = show }
}

// WithObserver registers a callback invoked after every value change
func WithObserver(fn func(value, max float64)) BarOption {
	return func(b *Bar) { b.observer = fn }
}

// Bar is the progress display collaborator. It implements interfaces.ProgressDisplay.
type Bar struct {
	mu             sync.RWMutex
	value          float64
	max            float64
	color          string
	label          string
	showPercentage bool
	observer       func(value, max float64)
}

// NewBar creates a bar with max 100, color #4CAF50 and percentage text enabled
func NewBar(opts ...BarOption) *Bar {
	b := &Bar{
		max:            DefaultBarMax,
		color:          DefaultBarColor,
		showPercentage: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.value = clamp(b.value, b.max)
	return b
}

// SetValue stores value clamped to [0, max]
func (b *Bar) SetValue(value float64) {
	b.mu.Lock()
	b.value = clamp(value, b.max)
	current, max := b.value, b.max
	observer := b.observer
	b.mu.Unlock()

	if observer != nil {
		observer(current, max)
	}
}

// Value returns the current value
func (b *Bar) Value() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// SetMax sets the maximum (at least 1) and re-clamps the value
func (b *Bar) SetMax(max float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.max = math.Max(1, max)
	b.value = clamp(b.value, b.max)
}

// Max returns the maximum
func (b *Bar) Max() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.max
}

func (b *Bar) SetColor(color string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.color = color
}

func (b *Bar) Color() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.color
}

func (b *Bar) SetLabel(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.label = label
}

func (b *Bar) Label() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.label
}

// ShowPercentage toggles the trailing percentage text
func (b *Bar) ShowPercentage(show bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.showPercentage = show
}

// Percentage returns value as a percentage of max
func (b *Bar) Percentage() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value / b.max * 100
}

// Render draws the bar as text, e.g. "Анализ [#########.....] 64%"
func (b *Bar) Render(width int) string {
	if width <= 0 {
		width = defaultBarWidth
	}

	b.mu.RLock()
	percentage := b.value / b.max * 100
	label := b.label
	showPercentage := b.showPercentage
	b.mu.RUnlock()

	filled := int(math.Round(percentage / 100 * float64(width)))
	if filled > width {
		filled = width
	}

	var sb strings.Builder
	if label != "" {
		sb.WriteString(label)
		sb.WriteString(" ")
	}
	sb.WriteString("[")
	sb.WriteString(strings.Repeat("#", filled))
	sb.WriteString(strings.Repeat(".", width-filled))
	sb.WriteString("]")
	if showPercentage {
		sb.WriteString(fmt.Sprintf(" %d%%", int(math.Round(percentage))))
	}
	return sb.String()
}

func clamp(value, max float64) float64 {
	return math.Max(0, math.Min(max, value))
}
