package models

// Character is the persona the assistant plays.
type Character struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PersonaPrompt string `json:"persona_prompt"`
	IsActive      bool   `json:"is_active"`
}

// Scenario carries the flow rules and framing for a session.
type Scenario struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ScenarioPrompt string `json:"scenario_prompt"`
	FirstMessage   string `json:"first_message"`
	Story          string `json:"story"`
	Outline        string `json:"outline"`
	Goal           string `json:"goal"`
	IsActive       bool   `json:"is_active"`
}
