package plan

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed taskfile.schema.json
var taskFileSchemaJSON []byte

// TaskSpec is one planner-proposed task. Dependencies are indices into the task list.
type TaskSpec struct {
	Description  string `yaml:"description" json:"description"`
	ActionType   string `yaml:"action_type,omitempty" json:"action_type,omitempty"`
	Dependencies []int  `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// TaskFile is the planner output consumed by the CLI, in YAML or JSON.
type TaskFile struct {
	Name  string     `yaml:"name,omitempty" json:"name,omitempty"`
	Tasks []TaskSpec `yaml:"tasks" json:"tasks"`
}

var taskFileSchema = mustCompileSchema(taskFileSchemaJSON)

func mustCompileSchema(raw []byte) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("unmarshal task file schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("taskfile.schema.json", doc); err != nil {
		panic(fmt.Sprintf("add task file schema: %v", err))
	}
	schema, err := c.Compile("taskfile.schema.json")
	if err != nil {
		panic(fmt.Sprintf("compile task file schema: %v", err))
	}
	return schema
}

// LoadTaskFile reads and validates a task file.
func LoadTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	tf, err := ParseTaskFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}

// ParseTaskFile decodes YAML or JSON (JSON is valid YAML) and validates it
// against the task file schema.
func ParseTaskFile(data []byte) (*TaskFile, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, &ValidationError{Field: "task file", Value: len(data), Reason: err.Error()}
	}

	// Round-trip through JSON so the validator sees json.Number values
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, &ValidationError{Field: "task file", Value: len(data), Reason: err.Error()}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, &ValidationError{Field: "task file", Value: len(data), Reason: err.Error()}
	}
	if err := taskFileSchema.Validate(inst); err != nil {
		return nil, &ValidationError{Field: "tasks", Value: string(asJSON), Reason: err.Error()}
	}

	var tf TaskFile
	if err := json.Unmarshal(asJSON, &tf); err != nil {
		return nil, &ValidationError{Field: "tasks", Value: string(asJSON), Reason: err.Error()}
	}
	return &tf, nil
}

// Build adds every task in order to a new plan.
func (tf *TaskFile) Build(opts ...Option) (*ExecutionPlan, error) {
	p := NewExecutionPlan(opts...)
	for i, spec := range tf.Tasks {
		if _, err := p.AddTask(spec.Description, ActionType(spec.ActionType), spec.Dependencies); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}
	return p, nil
}
