package params

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	Name    string `param:"name,mandatory,alias=n"`
	Timeout int    `param:"timeout,default=30"`
	Verbose bool   `param:"verbose"`
}

func TestDescribeAssignsPositionsToMandatoryFields(t *testing.T) {
	defs, err := Describe(reflect.TypeOf(testCommand{}))
	require.NoError(t, err)
	require.Len(t, defs, 3)

	byName := map[string]*Definition{}
	for _, d := range defs {
		byName[d.Name] = d
	}

	require.NotNil(t, byName["name"].Position)
	assert.Equal(t, 0, *byName["name"].Position)
	assert.True(t, byName["name"].Mandatory)
	assert.Equal(t, []string{"-name", "-n"}, byName["name"].AllParamNames())

	assert.Nil(t, byName["timeout"].Position)
	assert.Equal(t, "30", byName["timeout"].Default)
}

type explicitPositionCommand struct {
	Source string `param:"source,position=0"`
	Dest   string `param:"dest,position=1"`
	Mode   string `param:"mode,mandatory"`
}

func TestDescribeAutoPositionsStartAfterHighestExplicit(t *testing.T) {
	defs, err := Describe(reflect.TypeOf(explicitPositionCommand{}))
	require.NoError(t, err)

	byName := map[string]*Definition{}
	for _, d := range defs {
		byName[d.Name] = d
	}
	require.NotNil(t, byName["mode"].Position)
	assert.Equal(t, 2, *byName["mode"].Position)
}

func TestSetFieldAssignsScalar(t *testing.T) {
	defs, err := Describe(reflect.TypeOf(testCommand{}))
	require.NoError(t, err)

	var cmd testCommand
	v := reflect.ValueOf(&cmd).Elem()
	for _, d := range defs {
		switch d.Name {
		case "name":
			require.NoError(t, d.SetField(v, "web1"))
		case "timeout":
			require.NoError(t, d.SetField(v, 45))
		case "verbose":
			require.NoError(t, d.SetField(v, true))
		}
	}
	assert.Equal(t, "web1", cmd.Name)
	assert.Equal(t, 45, cmd.Timeout)
	assert.True(t, cmd.Verbose)
}
