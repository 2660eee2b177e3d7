// Package loopdetect spots agents stuck repeating the same tool call and
// stops runaway iteration.
package loopdetect

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Verdict is the outcome of recording one tool call.
type Verdict int

const (
	// Allowed means the call may proceed.
	Allowed Verdict = iota
	// Warning means the call may proceed but is close to the repeat limit.
	Warning
	// Blocked means the identical call has repeated past the limit.
	Blocked
	// MaxIterationsReached means the session hit the iteration ceiling.
	MaxIterationsReached
)

func (v Verdict) String() string {
	switch v {
	case Warning:
		return "warning"
	case Blocked:
		return "blocked"
	case MaxIterationsReached:
		return "max_iterations"
	default:
		return "allowed"
	}
}

// Outcome carries the verdict plus the repeat count that produced it.
type Outcome struct {
	Verdict     Verdict
	Tool        string
	RepeatCount int
}

// Config tunes a Detector.
type Config struct {
	MaxToolLoops         int     `json:"max_tool_loops" envconfig:"MAX_TOOL_LOOPS"`
	MaxRepeatedToolCalls int     `json:"max_repeated_tool_calls" envconfig:"MAX_REPEATED_TOOL_CALLS"`
	WarningThreshold     float64 `json:"warning_threshold" envconfig:"WARNING_THRESHOLD"`
	Enabled              bool    `json:"enabled" envconfig:"ENABLED"`
}

// DefaultConfig returns the standard loop detection configuration.
func DefaultConfig() Config {
	return Config{
		MaxToolLoops:         100,
		MaxRepeatedToolCalls: 5,
		WarningThreshold:     0.6,
		Enabled:              true,
	}
}

// Stats summarizes detector state.
type Stats struct {
	IterationCount    int    `json:"iteration_count"`
	UniqueSignatures  int    `json:"unique_signatures"`
	MostRepeatedTool  string `json:"most_repeated_tool,omitempty"`
	MostRepeatedCount int    `json:"most_repeated_count"`
}

// Detector tracks tool-call signatures within one agent session.
// Safe for concurrent use.
type Detector struct {
	mu         sync.Mutex
	cfg        Config
	iterations int
	signatures map[string]int
	sigTool    map[string]string
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	if cfg.MaxToolLoops <= 0 {
		cfg.MaxToolLoops = DefaultConfig().MaxToolLoops
	}
	if cfg.MaxRepeatedToolCalls <= 0 {
		cfg.MaxRepeatedToolCalls = DefaultConfig().MaxRepeatedToolCalls
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultConfig().WarningThreshold
	}
	return &Detector{
		cfg:        cfg,
		signatures: make(map[string]int),
		sigTool:    make(map[string]string),
	}
}

// Signature builds the identity key for a tool call. Arguments serialize to
// canonical JSON (object keys sorted) so logically equal calls collide and
// different arguments never do.
func Signature(tool string, args map[string]any) string {
	return tool + ":" + canonicalJSON(args)
}

func canonicalJSON(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			sb.WriteString(canonicalJSON(val[k]))
		}
		sb.WriteByte('}')
		return sb.String()
	case []any:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(canonicalJSON(item))
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%q", fmt.Sprint(val))
		}
		return string(b)
	}
}

// Record registers one tool call and returns the verdict. The iteration
// counter advances even while detection is disabled so re-enabling keeps an
// honest count.
func (d *Detector) Record(tool string, args map[string]any) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.iterations++
	if !d.cfg.Enabled {
		return Outcome{Verdict: Allowed, Tool: tool}
	}
	if d.iterations > d.cfg.MaxToolLoops {
		return Outcome{Verdict: MaxIterationsReached, Tool: tool}
	}

	sig := Signature(tool, args)
	d.signatures[sig]++
	d.sigTool[sig] = tool
	count := d.signatures[sig]

	warnAt := int(math.Ceil(float64(d.cfg.MaxRepeatedToolCalls) * d.cfg.WarningThreshold))
	switch {
	case count > d.cfg.MaxRepeatedToolCalls:
		return Outcome{Verdict: Blocked, Tool: tool, RepeatCount: count}
	case count >= warnAt:
		return Outcome{Verdict: Warning, Tool: tool, RepeatCount: count}
	default:
		return Outcome{Verdict: Allowed, Tool: tool, RepeatCount: count}
	}
}

// Reset clears all signatures and the iteration counter.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.iterations = 0
	d.signatures = make(map[string]int)
	d.sigTool = make(map[string]string)
}

// ResetSignature clears the repeat count for one exact call, for use after
// the environment changed and a retry is legitimate.
func (d *Detector) ResetSignature(tool string, args map[string]any) {
	sig := Signature(tool, args)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.signatures, sig)
	delete(d.sigTool, sig)
}

// Disable turns detection off for the rest of the session.
func (d *Detector) Disable() {
	d.mu.Lock()
	d.cfg.Enabled = false
	d.mu.Unlock()
}

// Enable turns detection back on.
func (d *Detector) Enable() {
	d.mu.Lock()
	d.cfg.Enabled = true
	d.mu.Unlock()
}

// IsEnabled reports whether detection is active.
func (d *Detector) IsEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Enabled
}

// Stats returns a snapshot of detector state.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		IterationCount:   d.iterations,
		UniqueSignatures: len(d.signatures),
	}
	for sig, count := range d.signatures {
		if count > s.MostRepeatedCount {
			s.MostRepeatedCount = count
			s.MostRepeatedTool = d.sigTool[sig]
		}
	}
	return s
}
