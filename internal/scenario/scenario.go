package scenario

import (
	"fmt"
)

// Scenario pairs a load profile with the action every VU repeats.
type Scenario struct {
	Name    string
	Profile Profile
	Action  *Action
}

// Default builds the generation scenario against host with the default
// profile.
func Default(host string) *Scenario {
	return &Scenario{
		Name:    "generate",
		Profile: DefaultProfile(),
		Action:  DefaultAction(host),
	}
}

// Validate checks that the scenario can run.
func (s *Scenario) Validate() error {
	if err := s.Profile.Validate(); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if s.Action == nil {
		return fmt.Errorf("scenario %s: no action", s.Name)
	}
	if _, err := s.Action.Target.URL(); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if len(s.Action.Checks) == 0 {
		return fmt.Errorf("scenario %s: at least one check is required", s.Name)
	}
	return nil
}
