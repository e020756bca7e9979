package config

import "testing"

func TestValidate(t *testing.T) {
	good := &Config{RemotePrefix: "ingest-live", PollIntervalSec: 5, BatchSize: 3}
	if err := good.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	bad := &Config{RemotePrefix: " ", PollIntervalSec: 0, BatchSize: -1}
	if err := bad.Validate(); err == nil {
		t.Error("invalid config accepted")
	}
}

func TestHasValidAPI(t *testing.T) {
	c := &Config{}
	if c.HasValidAPI() {
		t.Error("empty credentials should not be valid")
	}
	c.APIKey = "k"
	c.BaseURL = "https://api.example.com/v1"
	if !c.HasValidAPI() {
		t.Error("expected valid API configuration")
	}
}
