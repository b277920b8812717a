package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mockServiceConfig implements ServiceConfig for testing ApplyServiceConfigs
type mockServiceConfig struct {
	calls       []string
	baseDir     string
	validateErr error
}

func (m *mockServiceConfig) ApplyDefaults() {
	m.calls = append(m.calls, "defaults")
}

func (m *mockServiceConfig) ApplyEnvOverrides() {
	m.calls = append(m.calls, "env")
}

func (m *mockServiceConfig) ResolvePaths(baseDir string) {
	m.calls = append(m.calls, "paths")
	m.baseDir = baseDir
}

func (m *mockServiceConfig) Validate() error {
	m.calls = append(m.calls, "validate")
	return m.validateErr
}

func TestApplyServiceConfigs_AllMethodsCalledInOrder(t *testing.T) {
	mock := &mockServiceConfig{}

	err := ApplyServiceConfigs("/config", mock)

	assert.NoError(t, err)
	assert.Equal(t, []string{"defaults", "env", "paths", "validate"}, mock.calls)
	assert.Equal(t, "/config", mock.baseDir)
}

func TestApplyServiceConfigs_StopsOnValidationError(t *testing.T) {
	failing := &mockServiceConfig{validateErr: errors.New("bad")}
	next := &mockServiceConfig{}

	err := ApplyServiceConfigs("/config", failing, next)

	assert.EqualError(t, err, "bad")
	assert.Empty(t, next.calls)
}
