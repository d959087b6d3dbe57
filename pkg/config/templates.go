// Package config loads system workflow templates from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var ErrInvalidTemplateFile = errors.New("invalid template file")

// TemplateFile is the document layout of a templates YAML file.
type TemplateFile struct {
	Templates []TemplateConfig `yaml:"templates"`
}

type TemplateConfig struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	InitialNode string       `yaml:"initial_node"`
	Nodes       []NodeConfig `yaml:"nodes"`
	Links       []LinkConfig `yaml:"links"`
}

type NodeConfig struct {
	ID     string   `yaml:"id"`
	Title  string   `yaml:"title"`
	Final  bool     `yaml:"final"`
	Users  []string `yaml:"users"`
	Groups []string `yaml:"groups"`
}

type LinkConfig struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	From  string   `yaml:"from"`
	To    string   `yaml:"to"`
	Types []string `yaml:"types"`
}

const templateSchema = `{
  "type": "object",
  "required": ["templates"],
  "properties": {
    "templates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "nodes"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 3},
          "initial_node": {"type": "string"},
          "nodes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "title"],
              "additionalProperties": false,
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "title": {"type": "string", "minLength": 1},
                "final": {"type": "boolean"},
                "users": {"type": "array", "items": {"type": "string"}},
                "groups": {"type": "array", "items": {"type": "string"}}
              }
            }
          },
          "links": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "title", "from", "to", "types"],
              "additionalProperties": false,
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "title": {"type": "string", "minLength": 1},
                "from": {"type": "string", "minLength": 1},
                "to": {"type": "string", "minLength": 1},
                "types": {
                  "type": "array",
                  "minItems": 1,
                  "items": {"enum": ["bug", "task", "feature", "improvement"]}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// LoadTemplates reads templates from path, a YAML file or a directory whose
// *.yaml and *.yml files are read in name order. A missing path yields no templates.
func LoadTemplates(path string) ([]*models.WorkflowDescription, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to stat templates path %s: %w", path, err)
	}

	files := []string{path}

	if info.IsDir() {
		files, err = templateFiles(path)
		if err != nil {
			return nil, err
		}
	}

	var descriptions []*models.WorkflowDescription

	for _, file := range files {
		loaded, err := LoadTemplateFile(file)
		if err != nil {
			return nil, err
		}

		descriptions = append(descriptions, loaded...)
	}

	return descriptions, nil
}

func templateFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory %s: %w", dir, err)
	}

	var files []string

	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	slices.Sort(files)

	return files, nil
}

// LoadTemplateFile parses and validates one templates file.
func LoadTemplateFile(path string) ([]*models.WorkflowDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	descriptions, err := ParseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return descriptions, nil
}

// ParseTemplates validates data against the template schema and converts it
// into workflow descriptions without a project.
func ParseTemplates(data []byte) ([]*models.WorkflowDescription, error) {
	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidTemplateFile, err)
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to decode templates: %w", ErrInvalidTemplateFile, err)
	}

	descriptions := make([]*models.WorkflowDescription, 0, len(file.Templates))
	for _, template := range file.Templates {
		descriptions = append(descriptions, template.toDescription())
	}

	return descriptions, nil
}

func validateDocument(document any) error {
	if document == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidTemplateFile)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(templateSchema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTemplateFile, err)
	}

	if !result.Valid() {
		var problems []string
		for _, resultError := range result.Errors() {
			problems = append(problems, resultError.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidTemplateFile, strings.Join(problems, "; "))
	}

	return nil
}

func (t TemplateConfig) toDescription() *models.WorkflowDescription {
	description := &models.WorkflowDescription{
		ID:            t.ID,
		Name:          t.Name,
		InitialNodeID: t.InitialNode,
		Nodes:         make([]*models.NodeDescription, 0, len(t.Nodes)),
		Links:         make([]*models.LinkDescription, 0, len(t.Links)),
	}

	for _, node := range t.Nodes {
		description.Nodes = append(description.Nodes, &models.NodeDescription{
			ID:               node.ID,
			Title:            node.Title,
			IsFinal:          node.Final,
			AuthorizedUsers:  node.Users,
			AuthorizedGroups: node.Groups,
		})
	}

	for _, link := range t.Links {
		types := make([]models.ItemType, 0, len(link.Types))
		for _, itemType := range link.Types {
			types = append(types, models.ItemType(itemType))
		}

		description.Links = append(description.Links, &models.LinkDescription{
			ID:            link.ID,
			Title:         link.Title,
			InitialNodeID: link.From,
			FinalNodeID:   link.To,
			EligibleTypes: types,
		})
	}

	return description
}
