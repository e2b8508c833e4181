package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		want  Duration
		wrote string
	}{
		{"seconds string", `"30s"`, Duration(30 * time.Second), `"30s"`},
		{"minutes string", `"5m"`, Duration(5 * time.Minute), `"5m0s"`},
		{"bare seconds", `15`, Duration(15 * time.Second), `"15s"`},
		{"numeric string", `"60"`, Duration(time.Minute), `"1m0s"`},
		{"null", `null`, Duration(0), `"0s"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			assert.Equal(t, tt.want, d)

			out, err := json.Marshal(d)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wrote, string(out))
		})
	}
}

func TestDuration_UnmarshalJSON_Invalid(t *testing.T) {
	t.Parallel()

	var d Duration
	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	require.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var cfg struct {
		Poll Duration `yaml:"poll"`
		Slow Duration `yaml:"slow"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("poll: 30s\nslow: 300\n"), &cfg))
	assert.Equal(t, 30*time.Second, cfg.Poll.Std())
	assert.Equal(t, 5*time.Minute, cfg.Slow.Std())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "poll: 30s")
	assert.Contains(t, string(out), "slow: 5m0s")
}

func TestDurationDecodeHook(t *testing.T) {
	t.Parallel()

	var out struct {
		A Duration      `mapstructure:"a"`
		B Duration      `mapstructure:"b"`
		C time.Duration `mapstructure:"c"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DurationDecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(map[string]any{"a": "10s", "b": 20, "c": "1m"}))

	assert.Equal(t, Duration(10*time.Second), out.A)
	assert.Equal(t, Duration(20*time.Second), out.B)
	assert.Equal(t, time.Minute, out.C)
}
