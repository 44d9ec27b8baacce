package config

import (
	"github.com/pelletier/go-toml/v2"
	"testing"
)

func TestRenderRoundTrip(t *testing.T) {
	out, err := Render(map[string]any{
		"config":      "/etc/osext.toml",
		"port":        1234,
		"host":        "127.0.0.1",
		"tcp-nodelay": true,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	var back map[string]any
	if err := toml.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("output is not valid toml: %v\n%s", err, out)
	}
	if _, ok := back["config"]; ok {
		t.Error("config path was rendered")
	}
	if back["host"] != "127.0.0.1" || back["port"] != int64(1234) || back["tcp-nodelay"] != true {
		t.Errorf("unexpected settings %v", back)
	}
}
