package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gitlab.com/aoterocom/autotrader/models"
	"gitlab.com/aoterocom/autotrader/risk"
	"gitlab.com/aoterocom/autotrader/services"
	"gitlab.com/aoterocom/autotrader/strategies"
	"gopkg.in/yaml.v3"
)

// InstanceConfig is one entry of the strategies file.
type InstanceConfig struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Type        string                 `yaml:"type"`
	Config      map[string]interface{} `yaml:"config"`
	Symbols     []string               `yaml:"symbols"`
	Start       string                 `yaml:"start"`
	End         string                 `yaml:"end"`
	Timezone    string                 `yaml:"timezone"`
	Capital     float64                `yaml:"capital"`
	Risk        risk.Config            `yaml:"risk"`

	StopLossPoints   float64 `yaml:"stop_loss_points"`
	TakeProfitPoints float64 `yaml:"take_profit_points"`
	PointSize        float64 `yaml:"point_size"`
	TickValue        float64 `yaml:"tick_value"`
	Comment          string  `yaml:"comment"`
}

type strategiesFile struct {
	Strategies []InstanceConfig `yaml:"strategies"`
}

// LoadStrategies reads and validates every instance of a strategies file.
// Nothing is returned unless all entries are valid.
func LoadStrategies(path string) ([]InstanceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %s", ErrInvalidConfig, path, err.Error())
	}
	return ParseStrategies(data)
}

func ParseStrategies(data []byte) ([]InstanceConfig, error) {
	var file strategiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies defined", ErrInvalidConfig)
	}

	var problems []string
	seen := make(map[string]bool)
	for i, instance := range file.Strategies {
		if seen[instance.Name] {
			problems = append(problems, fmt.Sprintf("strategy %s defined twice", instance.Name))
			continue
		}
		seen[instance.Name] = true
		if _, err := instance.Build(nil); err != nil {
			label := instance.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i+1)
			}
			problems = append(problems, fmt.Sprintf("strategy %s: %s", label, err.Error()))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return file.Strategies, nil
}

func (c InstanceConfig) Params() (models.StrategyParams, error) {
	strategyType, err := models.ParseStrategyType(c.Type)
	if err != nil {
		return models.StrategyParams{}, err
	}
	return models.StrategyParams{
		Name:        c.Name,
		Description: c.Description,
		Type:        strategyType,
		Config:      c.Config,
	}, nil
}

func (c InstanceConfig) Execution() services.ExecutionSettings {
	return services.ExecutionSettings{
		StopLossPoints:   c.StopLossPoints,
		TakeProfitPoints: c.TakeProfitPoints,
		PointSize:        c.PointSize,
		TickValue:        c.TickValue,
		Comment:          c.Comment,
	}
}

// Location resolves Timezone; empty means UTC.
func (c InstanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return location, nil
}

// Build creates a fresh strategy instance with its own risk manager. A nil
// clock means time.Now.
func (c InstanceConfig) Build(clock func() time.Time) (*services.StrategyInstance, error) {
	var errs []error

	params, err := c.Params()
	if err != nil {
		errs = append(errs, err)
	}
	start, err := services.ParseTimeOfDay(c.Start)
	if err != nil {
		errs = append(errs, fmt.Errorf("start: %w", err))
	}
	end, err := services.ParseTimeOfDay(c.End)
	if err != nil {
		errs = append(errs, fmt.Errorf("end: %w", err))
	}
	location, err := c.Location()
	if err != nil {
		errs = append(errs, err)
	}
	if c.Capital <= 0 {
		errs = append(errs, fmt.Errorf("capital %v must be positive", c.Capital))
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		return nil, errors.New(strings.Join(messages, ", "))
	}

	strategy, err := strategies.New(params)
	if err != nil {
		return nil, err
	}
	manager, err := risk.NewManager(c.Risk, c.Capital, clock)
	if err != nil {
		return nil, err
	}
	return services.NewStrategyInstance(strategy, manager, c.Symbols, start, end, location, c.Execution())
}
