package env_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/applyflow/telemetry/common/env"
)

func TestFromString(t *testing.T) {
	for _, valid := range []string{"local", "development", "staging", "production"} {
		e, err := env.FromString(valid)
		assert.NoError(t, err)
		assert.Equal(t, valid, e.String())
	}

	_, err := env.FromString("qa")
	assert.Error(t, err)
}

func TestGetApplicationEnvSafe(t *testing.T) {
	t.Setenv(env.ApplicationEnvKey, "staging")
	assert.Equal(t, env.EnvironmentStaging, env.GetApplicationEnvSafe())
	assert.False(t, env.IsLocalApplicationEnv())

	t.Setenv(env.ApplicationEnvKey, "not-an-env")
	assert.Equal(t, env.EnvironmentLocal, env.GetApplicationEnvSafe())
	assert.True(t, env.IsLocalApplicationEnv())
}

func TestLogPreset(t *testing.T) {
	assert.Equal(t, env.LogPreset{Verbose: true, Console: true}, env.EnvironmentLocal.LogPreset())
	assert.Equal(t, env.LogPreset{Verbose: true}, env.EnvironmentDevelopment.LogPreset())
	assert.Equal(t, env.LogPreset{}, env.EnvironmentStaging.LogPreset())
	assert.Equal(t, env.LogPreset{}, env.EnvironmentProduction.LogPreset())
}
