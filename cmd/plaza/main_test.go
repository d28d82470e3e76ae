package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "admin"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestMigrateCmd_RejectsUnknownDirection(t *testing.T) {
	t.Setenv("PLAZA_ENV_FILE", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "sideways"})

	require.Error(t, root.Execute())
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("PLAZA_ENV_FILE", "")
	t.Setenv("PLAZA_DATABASE_URL", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "up"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is not set")
}
