package urlparser

import (
	"crypto/tls"
	"encoding/json"
	"net/url"
	"reflect"
	"testing"
)

func TestStringToTLSConfigHookFunc(t *testing.T) {
	hook := StringToTLSConfigHookFunc()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "Valid JSON string",
			input:   testTLSConfigJSON,
			wantErr: false,
		},
		{
			name:    "Invalid JSON string",
			input:   "invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := hook(reflect.TypeOf(""), reflect.TypeOf(&tls.Config{}), tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("StringToTLSConfigHookFunc() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStringToTLSConfigHookFunc_IgnoresOtherTypes(t *testing.T) {
	hook := StringToTLSConfigHookFunc()
	got, err := hook(reflect.TypeOf(""), reflect.TypeOf(0), "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5" {
		t.Errorf("got %v, want input passed through", got)
	}
}

func mustParseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func mustUnmarshalTLSConfig(jsonStr string) *tls.Config {
	var config tls.Config
	err := json.Unmarshal([]byte(jsonStr), &config)
	if err != nil {
		panic(err)
	}
	return &config
}

// testTLSConfigJSON is a JSON-encoded TLS config.
const testTLSConfigJSON = `{
    "InsecureSkipVerify": true,
    "MinVersion": 771,
    "ServerName": "localhost"
}`
