package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr      error
	steps      []int
	forced     []int
	version    uint
	versionErr error
}

func (f *fakeMigrator) Up() error { return f.upErr }
func (f *fakeMigrator) Steps(n int) error { f.steps = append(f.steps, n); return nil }
func (f *fakeMigrator) Force(version int) error { f.forced = append(f.forced, version); return nil }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, f.versionErr
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    command
		wantErr bool
	}{
		{args: nil, want: command{name: "up"}},
		{args: []string{"up"}, want: command{name: "up"}},
		{args: []string{"version"}, want: command{name: "version"}},
		{args: []string{"down"}, want: command{name: "down", arg: 1}},
		{args: []string{"down", "3"}, want: command{name: "down", arg: 3}},
		{args: []string{"down", "0"}, wantErr: true},
		{args: []string{"down", "x"}, wantErr: true},
		{args: []string{"force", "4"}, want: command{name: "force", arg: 4}},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"up", "extra"}, wantErr: true},
		{args: []string{"sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunUpTreatsNoChangeAsSuccess(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 4}
	var out bytes.Buffer

	require.NoError(t, run(m, command{name: "up"}, &out))
	assert.Contains(t, out.String(), "version=4")
}

func TestRunUpReportsFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("syntax error")}
	err := run(m, command{name: "up"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate up")
}

func TestRunDownAndForce(t *testing.T) {
	m := &fakeMigrator{}
	var out bytes.Buffer

	require.NoError(t, run(m, command{name: "down", arg: 2}, &out))
	require.NoError(t, run(m, command{name: "force", arg: 3}, &out))
	assert.Equal(t, []int{-2}, m.steps)
	assert.Equal(t, []int{3}, m.forced)
}

func TestRunVersionOnEmptySchema(t *testing.T) {
	m := &fakeMigrator{versionErr: migrate.ErrNilVersion}
	var out bytes.Buffer

	require.NoError(t, run(m, command{name: "version"}, &out))
	assert.Contains(t, out.String(), "no migrations applied")
}
