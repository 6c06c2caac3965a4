package component

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramoncreager/matrix/matrixerrors"
)

type stubComponent struct{ name string }

func (s *stubComponent) Meta() Metadata            { return Metadata{Name: s.name, Type: "stub"} }
func (s *stubComponent) InputPorts() []Port         { return nil }
func (s *stubComponent) OutputPorts() []Port        { return nil }
func (s *stubComponent) ConfigSchema() ConfigSchema { return ConfigSchema{} }
func (s *stubComponent) Health() HealthStatus       { return HealthStatus{Healthy: true} }
func (s *stubComponent) DataFlow() FlowMetrics      { return FlowMetrics{} }

func stubFactory(name string, _ json.RawMessage, _ Dependencies) (Discoverable, error) {
	return &stubComponent{name: name}, nil
}

func TestRegistry_CreateComponentUnknownTypeIsFatal(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateComponent("inst", "unknown", nil, Dependencies{})
	require.Error(t, err)
	assert.True(t, matrixerrors.IsFatal(err))
}

func TestRegistry_CreateComponentRegistersInstance(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("stub", &Registration{Type: "stub", Factory: stubFactory}))

	inst, err := r.CreateComponent("nettask", "stub", nil, Dependencies{})
	require.NoError(t, err)
	assert.Same(t, inst, r.Component("nettask"))
}

func TestRegistry_CreateComponentDuplicateInstanceIsInvalid(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("stub", &Registration{Type: "stub", Factory: stubFactory}))
	_, err := r.CreateComponent("nettask", "stub", nil, Dependencies{})
	require.NoError(t, err)

	_, err = r.CreateComponent("nettask", "stub", nil, Dependencies{})
	assert.Error(t, err)
	assert.True(t, matrixerrors.IsInvalid(err))
}

func TestValidateComponentName(t *testing.T) {
	assert.NoError(t, ValidateComponentName("nettask-1"))
	assert.Error(t, ValidateComponentName(""))
	assert.Error(t, ValidateComponentName("bad.name"))
	assert.Error(t, ValidateComponentName("bad name"))
}
