// Package scenario loads agent graphs from YAML.
//
// A scenario names the agents of one deployment, their instructions, the
// tools each agent may call and the permitted handoffs between them:
//
//	name: airline
//	root: greeter
//	supervisor:
//	  max_iterations: 8
//	  timeout: 20s
//	  tools: [lookup_booking]
//	agents:
//	  - name: greeter
//	    purpose: Greets callers and routes them.
//	    instructions: You greet {{.user}} on behalf of Acme Air.
//	    handoffs: [booking]
//	    tools: [disconnect]
//	  - name: booking
//	    escalation: true
//
// Tool names resolve against the built-in tools (disconnect, sound_alarm)
// and the tools passed in BuildOptions.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Scenario is the YAML document.
type Scenario struct {
	Name       string      `yaml:"name"`
	Brand      string      `yaml:"brand,omitempty"`
	Root       string      `yaml:"root"`
	Supervisor *Supervisor `yaml:"supervisor,omitempty"`
	Agents     []AgentSpec `yaml:"agents"`
}

// Supervisor configures the escalation tool shared by agents that enable it.
type Supervisor struct {
	Instructions  string   `yaml:"instructions,omitempty"`
	Model         string   `yaml:"model,omitempty"`
	MaxIterations int      `yaml:"max_iterations,omitempty"`
	Timeout       string   `yaml:"timeout,omitempty"`
	Fallback      string   `yaml:"fallback,omitempty"`
	Tools         []string `yaml:"tools,omitempty"`
}

// AgentSpec is one agent of a scenario.
type AgentSpec struct {
	Name         string   `yaml:"name"`
	Purpose      string   `yaml:"purpose,omitempty"`
	Instructions string   `yaml:"instructions,omitempty"`
	Voice        string   `yaml:"voice,omitempty"`
	Handoffs     []string `yaml:"handoffs,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	Escalation   bool     `yaml:"escalation,omitempty"`
}

// GetName returns the agent name.
func (a AgentSpec) GetName() string { return a.Name }

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario document. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty scenario document")
		}
		return nil, err
	}
	if sc.Root == "" && len(sc.Agents) > 0 {
		sc.Root = sc.Agents[0].Name
	}
	return &sc, nil
}

// Validate checks the document on its own, without resolving tools. All
// problems are reported together.
func (s *Scenario) Validate() error {
	var result *multierror.Error

	if len(s.Agents) == 0 {
		result = multierror.Append(result, errors.New("scenario defines no agents"))
	}

	seen := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.Name == "" {
			result = multierror.Append(result, fmt.Errorf("agents[%d]: name is required", i))
			continue
		}
		if seen[a.Name] {
			result = multierror.Append(result, fmt.Errorf("agents[%d]: duplicate agent %q", i, a.Name))
		}
		seen[a.Name] = true
	}

	for _, a := range s.Agents {
		for _, h := range a.Handoffs {
			if !seen[h] {
				result = multierror.Append(result, fmt.Errorf("agent %q: unknown handoff target %q", a.Name, h))
			}
		}
	}

	if s.Root != "" && !seen[s.Root] {
		result = multierror.Append(result, fmt.Errorf("root agent %q is not defined", s.Root))
	}

	if s.Supervisor != nil {
		if _, err := s.Supervisor.timeout(); err != nil {
			result = multierror.Append(result, err)
		}
		if s.Supervisor.MaxIterations < 0 {
			result = multierror.Append(result, errors.New("supervisor: max_iterations must not be negative"))
		}
	}

	return result.ErrorOrNil()
}

// AgentNames returns the agent names in declaration order.
func (s *Scenario) AgentNames() []string {
	names := make([]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		names = append(names, a.Name)
	}
	return names
}

func (s *Supervisor) timeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("supervisor: invalid timeout %q: %w", s.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("supervisor: timeout %q must not be negative", s.Timeout)
	}
	return d, nil
}
