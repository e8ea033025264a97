package coach

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type exerciseFile struct {
	Exercises []ExerciseConfig `yaml:"exercises"`
}

// LoadExercises reads additional exercise configs from a YAML file of the form
//
//	exercises:
//	  - type: lunge
//	    primary_angle: knee
//	    depth_threshold: 95
//	    extension_threshold: 155
//	    posture:
//	      - {angle: hip, limit: 70, warning: "Keep your torso upright"}
//	    leniency:
//	      - {name: senior, when: {age_above: 55}, depth_threshold: 110, message: "..."}
func LoadExercises(path string) ([]ExerciseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading exercises file: %w", err)
	}
	var f exerciseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing exercises file: %w", err)
	}
	return f.Exercises, nil
}

// RegistryWithFile builds a registry of the built-in exercises plus those in path.
// An empty path yields the built-ins only.
func RegistryWithFile(path string) (*Registry, error) {
	configs := Builtin()
	if path != "" {
		extra, err := LoadExercises(path)
		if err != nil {
			return nil, err
		}
		configs = append(configs, extra...)
	}
	return NewRegistry(configs...)
}
