package testcases

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptune/promptune/pkg/errors"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "test_cases_demo.json")

	require.NoError(t, Save(path, Sample("demo")))

	battery, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", battery.Project)
	require.Len(t, battery.TestCases, 2)
	assert.Equal(t, "tc001", battery.TestCases[0].ID)
	assert.Equal(t, "One-Click Checkout", battery.TestCases[0].Inputs["projectName"])
	assert.Equal(t, "E-commerce", battery.TestCases[0].Metadata["industry"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	var perr *errors.Error
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, errors.ResourceNotFound, perr.Code())
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyBattery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project":"x","test_cases":[]}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
