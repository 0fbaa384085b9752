package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a match flow executed
// against a real store and controller, with assertions on the final
// projected state.
type Scenario struct {
	// Name uniquely identifies this scenario. Doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// PlayerOne and PlayerTwo are the match participants.
	PlayerOne string `yaml:"player_one"`
	PlayerTwo string `yaml:"player_two"`

	// Flow is the ordered list of scoring actions.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final projected state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scoring action in the flow.
type Step struct {
	// Action is one of: point, highlight, undo_point, undo_highlight,
	// end_game, end_match.
	Action string `yaml:"action"`

	// Player is required for "point": "player1" or "player2".
	Player string `yaml:"player,omitempty"`

	// Fails marks a step that must be rejected by the controller.
	// The error leaves state untouched and the trace records it.
	Fails bool `yaml:"fails,omitempty"`
}

// Step action constants.
const (
	ActionPoint         = "point"
	ActionHighlight     = "highlight"
	ActionUndoPoint     = "undo_point"
	ActionUndoHighlight = "undo_highlight"
	ActionEndGame       = "end_game"
	ActionEndMatch      = "end_match"
)

// Assertion validates one aspect of the final projected state.
type Assertion struct {
	// Type is one of: score, games, serving, highlights, history.
	Type string `yaml:"type"`

	// PlayerOne / PlayerTwo are the expected values for score and
	// games assertions.
	PlayerOne int `yaml:"player_one,omitempty"`
	PlayerTwo int `yaml:"player_two,omitempty"`

	// Player is the expected server for serving assertions.
	Player string `yaml:"player,omitempty"`

	// Count is the expected size for highlights and history assertions.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertScore      = "score"
	AssertGames      = "games"
	AssertServing    = "serving"
	AssertHighlights = "highlights"
	AssertHistory    = "history"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.PlayerOne == "" || s.PlayerTwo == "" {
		return fmt.Errorf("player_one and player_two are required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		switch step.Action {
		case ActionPoint:
			if step.Player != "player1" && step.Player != "player2" {
				return fmt.Errorf("flow[%d]: point requires player \"player1\" or \"player2\"", i)
			}
		case ActionHighlight, ActionUndoPoint, ActionUndoHighlight, ActionEndGame, ActionEndMatch:
			if step.Player != "" {
				return fmt.Errorf("flow[%d]: %s takes no player", i, step.Action)
			}
		default:
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertScore, AssertGames:
		case AssertServing:
			if a.Player == "" {
				return fmt.Errorf("assertions[%d]: serving requires player", i)
			}
		case AssertHighlights, AssertHistory:
			if a.Count < 0 {
				return fmt.Errorf("assertions[%d]: count must be non-negative", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
