package models

type FieldType string

const (
	Number  FieldType = "number"
	Integer FieldType = "integer"
	String  FieldType = "string"
	Boolean FieldType = "boolean"
)

// Field describes one input of a model's inference form.
type Field struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	Options   []string  `json:"options,omitempty"`
	Minimum   *float64  `json:"minimum,omitempty"`
	Maximum   *float64  `json:"maximum,omitempty"`
	MaxLength *int      `json:"max_length,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Help      string    `json:"help,omitempty"`
}

type Model struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Organism    string  `json:"organism"`
	Antibiotic  string  `json:"antibiotic"`
	Version     string  `json:"version"`
	Inputs      []Field `json:"inputs"`
}

type InferenceRequest struct {
	Inputs map[string]any `json:"inputs"`
}

type InferenceResult struct {
	Prediction  string             `json:"prediction"`
	Probability float64            `json:"probability"`
	Label       string             `json:"label"`
	Explanation map[string]float64 `json:"explanation,omitempty"`
}
