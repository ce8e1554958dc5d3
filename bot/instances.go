package bot

import (
	"fmt"

	"gitlab.com/aoterocom/autotrader/config"
	"gitlab.com/aoterocom/autotrader/services"
)

// BuildInstances creates one strategy instance per entry, each with its own
// strategy and risk manager.
func BuildInstances(configs []config.InstanceConfig) ([]*services.StrategyInstance, error) {
	instances := make([]*services.StrategyInstance, 0, len(configs))
	for _, instanceConfig := range configs {
		instance, err := instanceConfig.Build(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: strategy %s: %s", config.ErrInvalidConfig, instanceConfig.Name, err.Error())
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func findInstance(configs []config.InstanceConfig, name string) (config.InstanceConfig, error) {
	for _, instanceConfig := range configs {
		if instanceConfig.Name == name {
			return instanceConfig, nil
		}
	}
	return config.InstanceConfig{}, fmt.Errorf("%w: no strategy named %q", config.ErrInvalidConfig, name)
}
