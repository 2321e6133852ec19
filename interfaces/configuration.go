package interfaces

import "encoding/json"

// Configurable is a component whose settings can be overridden from a JSON
// configuration document, keyed by ConfigurationKey.
type Configurable interface {
	ConfigurationKey() string

	// LoadConfiguration calls json.Unmarshal on the json.RawMessage into its configuration model
	LoadConfiguration(config json.RawMessage) error

	// ConfigurationModel returns a json.Marshal interface{} that reflects the current settings
	ConfigurationModel() interface{}
}
