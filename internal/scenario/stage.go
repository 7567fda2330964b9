// Package scenario defines what a genload run does: the staged load profile and
// the iteration action each virtual user repeats.
package scenario

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage is one segment of the load profile.
//
// During a stage the VU count ramps linearly from the previous stage's target
// (zero for the first stage) to Target, reaching it when Duration has elapsed.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
}

// Profile is the ordered list of stages executed one after another.
type Profile []Stage

// DefaultProfile returns the ramp-up, hold, ramp-down profile:
//
//	30s -> 10 VUs
//	1m  at 10 VUs
//	30s -> 0 VUs
func DefaultProfile() Profile {
	return Profile{
		{Duration: 30 * time.Second, Target: 10, Name: "ramp-up"},
		{Duration: time.Minute, Target: 10, Name: "hold"},
		{Duration: 30 * time.Second, Target: 0, Name: "ramp-down"},
	}
}

// ParseProfile parses the compact "duration:target,..." form, e.g.
// "30s:10,1m:10,30s:0".
func ParseProfile(s string) (Profile, error) {
	var p Profile

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n := len(p) + 1

		idx := strings.LastIndex(part, ":")
		if idx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target', got %q", n, part)
		}

		d, err := time.ParseDuration(part[:idx])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration %q: %w", n, part[:idx], err)
		}

		target, err := strconv.Atoi(part[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target %q: %w", n, part[idx+1:], err)
		}

		p = append(p, Stage{Duration: d, Target: target, Name: fmt.Sprintf("stage-%d", n)})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate reports the first structural problem with the profile.
func (p Profile) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("profile needs at least one stage")
	}
	for i, st := range p {
		if st.Duration < 0 {
			return fmt.Errorf("stage %d: duration cannot be negative", i+1)
		}
		if st.Target < 0 {
			return fmt.Errorf("stage %d: target cannot be negative", i+1)
		}
	}
	return nil
}

// TotalDuration is the sum of all stage durations.
func (p Profile) TotalDuration() time.Duration {
	var total time.Duration
	for _, st := range p {
		total += st.Duration
	}
	return total
}

// MaxTarget is the highest VU target of any stage.
func (p Profile) MaxTarget() int {
	max := 0
	for _, st := range p {
		if st.Target > max {
			max = st.Target
		}
	}
	return max
}

// TargetAt returns the interpolated VU target at elapsed and the index of the
// active stage. Past the end of the profile it returns the last target and
// len(p)-1.
func (p Profile) TargetAt(elapsed time.Duration) (int, int) {
	if len(p) == 0 {
		return 0, 0
	}

	var stageStart time.Duration
	prev := 0

	for i, st := range p {
		stageEnd := stageStart + st.Duration
		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(st.Duration)
			if progress < 0 {
				progress = 0
			}
			target := float64(prev) + float64(st.Target-prev)*progress
			return int(target + 0.5), i
		}
		prev = st.Target
		stageStart = stageEnd
	}

	return p[len(p)-1].Target, len(p) - 1
}

// String renders the profile in the form ParseProfile accepts.
func (p Profile) String() string {
	parts := make([]string, len(p))
	for i, st := range p {
		parts[i] = fmt.Sprintf("%s:%d", st.Duration, st.Target)
	}
	return strings.Join(parts, ",")
}
