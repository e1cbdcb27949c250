package personas

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// Persona is one suggestion generator. Personas only propose; the advisor
// decides.
type Persona interface {
	Name() string
	Suggest(obs schemas.PageObservation, history []schemas.StepOutcome) []schemas.SuggestedAction
}

// Composite merges the suggestions of the enabled personas into one ranked
// list, interleaving so no persona monopolizes the top ranks.
type Composite struct {
	logger   *zap.Logger
	personas []Persona
}

// maxSuggestions bounds the combined list fed into the advisor prompt.
const maxSuggestions = 6

// Build constructs the enabled personas by name.
func Build(names []string, logger *zap.Logger) (*Composite, error) {
	c := &Composite{logger: logger.Named("Personas")}
	for _, name := range names {
		switch name {
		case "skeptic":
			c.personas = append(c.personas, &skeptic{})
		case "power_user":
			c.personas = append(c.personas, &powerUser{})
		default:
			return nil, fmt.Errorf("unknown persona %q", name)
		}
	}
	return c, nil
}

// Suggest implements the suggester interface consumed by the step state
// machine.
func (c *Composite) Suggest(obs schemas.PageObservation, history []schemas.StepOutcome) []schemas.SuggestedAction {
	perPersona := make([][]schemas.SuggestedAction, len(c.personas))
	for i, p := range c.personas {
		perPersona[i] = p.Suggest(obs, history)
	}

	var merged []schemas.SuggestedAction
	for round := 0; len(merged) < maxSuggestions; round++ {
		advanced := false
		for _, list := range perPersona {
			if round < len(list) && len(merged) < maxSuggestions {
				merged = append(merged, list[round])
				advanced = true
			}
		}
		if !advanced {
			break
		}
	}
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged
}

// skeptic probes inputs with hostile-but-benign values: empty submits,
// overlong strings, characters that commonly break naive validation.
type skeptic struct{}

func (s *skeptic) Name() string { return "skeptic" }

func (s *skeptic) Suggest(obs schemas.PageObservation, _ []schemas.StepOutcome) []schemas.SuggestedAction {
	var out []schemas.SuggestedAction
	for _, el := range obs.Elements {
		if el.Tag != "input" && el.Tag != "textarea" {
			continue
		}
		switch el.Type {
		case "hidden", "submit", "button", "checkbox", "radio":
			continue
		}
		out = append(out,
			schemas.SuggestedAction{
				Kind:      schemas.ActionFill,
				Selector:  el.Selector,
				Value:     strings.Repeat("A", 300),
				Rationale: "overlong input often reveals missing length validation",
			},
			schemas.SuggestedAction{
				Kind:      schemas.ActionFill,
				Selector:  el.Selector,
				Value:     `O'Brien & Sons <test>`,
				Rationale: "quotes and angle brackets expose encoding bugs",
			},
		)
		if len(out) >= 4 {
			break
		}
	}
	return out
}

// powerUser pushes toward breadth: unexercised links and controls that lead
// off the current page.
type powerUser struct{}

func (p *powerUser) Name() string { return "power_user" }

func (p *powerUser) Suggest(obs schemas.PageObservation, history []schemas.StepOutcome) []schemas.SuggestedAction {
	clicked := map[string]bool{}
	for _, h := range history {
		if h.Decision.Kind == schemas.ActionClick {
			clicked[h.Decision.Selector] = true
		}
	}

	var out []schemas.SuggestedAction
	for _, el := range obs.Elements {
		if len(out) >= 4 {
			break
		}
		switch el.Tag {
		case "a":
			if el.Href != "" && !clicked[el.Selector] {
				out = append(out, schemas.SuggestedAction{
					Kind:      schemas.ActionClick,
					Selector:  el.Selector,
					Rationale: fmt.Sprintf("unexplored link to %s", el.Href),
				})
			}
		case "button":
			if !clicked[el.Selector] {
				out = append(out, schemas.SuggestedAction{
					Kind:      schemas.ActionClick,
					Selector:  el.Selector,
					Rationale: "untested control",
				})
			}
		}
	}
	return out
}
