package resolve

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/materia-group/blueline/internal/model"
)

// LoadRules reads the field rule table from a YAML file and returns the
// indexed, validated table. The file carries a top-level "rules" key.
func LoadRules(path string) (*model.RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: read rules %s", path)
	}

	var wrapper struct {
		Rules []model.FieldRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "resolve: parse rules")
	}

	table, err := model.NewRuleTable(wrapper.Rules)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: validate rules")
	}
	return table, nil
}
