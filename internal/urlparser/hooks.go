package urlparser

// Hooks for converting query parameters into specific types.

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// StringToTLSConfigHookFunc creates a decode hook for converting a [json] encoded
// [tls.Config] string into a pointer to a [tls.Config].
func StringToTLSConfigHookFunc() mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(&tls.Config{}) { //nolint:gosec // TLS MinVersion gets set later
			return data, nil
		}

		var config tls.Config
		if err := json.Unmarshal([]byte(data.(string)), &config); err != nil {
			return nil, fmt.Errorf("persistedcache: failed to parse TLS config: %w", err)
		}
		return &config, nil
	}
}
