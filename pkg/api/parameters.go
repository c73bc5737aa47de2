package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParametersFile is the batch parameter file format. A bare YAML list is
// accepted as well.
type ParametersFile struct {
	Parameters []string `yaml:"parameters"`
}

// LoadParameters reads a batch parameter file, unmarshals it, and validates.
func LoadParameters(filename string) ([]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading parameters file: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing parameters file: %w", err)
	}

	var params []string
	if len(node.Content) > 0 {
		if err := decodeParameters(node.Content[0], &params); err != nil {
			return nil, fmt.Errorf("decoding parameters file: %w", err)
		}
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("validating parameters file: parameter list is empty")
	}
	if err := ValidateParameters(params); err != nil {
		return nil, fmt.Errorf("validating parameters file: %w", err)
	}

	return params, nil
}

func decodeParameters(root *yaml.Node, params *[]string) error {
	if root.Kind == yaml.SequenceNode {
		return root.Decode(params)
	}
	var f ParametersFile
	if err := root.Decode(&f); err != nil {
		return err
	}
	*params = f.Parameters
	return nil
}
