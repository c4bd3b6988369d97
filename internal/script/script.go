// Package script reads meeting scripts: YAML files listing the participants
// of a meeting and the responses they produce, in order.
//
//	title: Sprint planning
//	participants:
//	  - id: "1"
//	    name: Sarah
//	    role: Product Owner
//	    voice: en_US-amy-medium
//	responses:
//	  - id: r1
//	    delay: 1s
//	    content: "Sarah: Good morning everyone. [NEXT_SPEAKER] Bola: Thank you Sarah."
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"gopkg.in/yaml.v3"
)

// ErrNoParticipants is returned for a script without participants.
var ErrNoParticipants = errors.New("script has no participants")

// Entry is a response plus how long to wait before delivering it.
type Entry struct {
	ttypes.Response `yaml:",inline"`
	Delay           time.Duration `yaml:"delay"`
}

// Script is a parsed meeting script.
type Script struct {
	Title        string               `yaml:"title"`
	Participants []ttypes.Participant `yaml:"participants"`
	Responses    []Entry              `yaml:"responses"`
}

// Load reads a script from path, or from stdin when path is "-".
func Load(path string) (*Script, error) {
	if path == "-" {
		return Read(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Read parses a script from r.
func Read(r io.Reader) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a script. Responses without an id get one
// derived from their position ("r1", "r2", ...).
func Parse(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoParticipants
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}

	for i := range s.Responses {
		if s.Responses[i].ID == "" {
			s.Responses[i].ID = fmt.Sprintf("r%d", i+1)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks participant and response ids.
func (s *Script) Validate() error {
	if len(s.Participants) == 0 {
		return ErrNoParticipants
	}

	var errs []error
	ids := make(map[string]bool)
	names := make(map[string]bool)
	for i, p := range s.Participants {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("participant %d: missing id", i+1))
		case ids[p.ID]:
			errs = append(errs, fmt.Errorf("participant %d: duplicate id %q", i+1, p.ID))
		}
		ids[p.ID] = true

		name := strings.ToLower(strings.TrimSpace(p.Name))
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("participant %q: missing name", p.ID))
		case names[name]:
			errs = append(errs, fmt.Errorf("participant %q: duplicate name %q", p.ID, p.Name))
		}
		names[name] = true
	}

	seen := make(map[string]bool)
	for i, r := range s.Responses {
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("response %d: duplicate id %q", i+1, r.ID))
		}
		seen[r.ID] = true
		if r.Delay < 0 {
			errs = append(errs, fmt.Errorf("response %q: negative delay", r.ID))
		}
	}
	return errors.Join(errs...)
}

// Participant returns the participant with the given id.
func (s *Script) Participant(id string) (ttypes.Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return ttypes.Participant{}, false
}
