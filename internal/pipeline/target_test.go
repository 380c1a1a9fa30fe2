package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obentoo/nixbump/internal/common/config"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"package", KindPackage, false},
		{"external-input", KindExternalInput, false},
		{"flake-input", KindExternalInput, false},
		{"Package", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateTargetValidate(t *testing.T) {
	tests := []struct {
		name   string
		target UpdateTarget
		want   error
	}{
		{"valid package", pkgTarget("crush", "0.1.0"), nil},
		{"valid input", inputTarget("nixpkgs", "abcdef12"), nil},
		{"empty name", pkgTarget("", "1.0"), ErrEmptyName},
		{"slash", pkgTarget("a/b", "1.0"), ErrInvalidName},
		{"dot dot", pkgTarget("..", "1.0"), ErrInvalidName},
		{"embedded dot dot", pkgTarget("a..b", "1.0"), ErrInvalidName},
		{"space", pkgTarget("a b", "1.0"), ErrInvalidName},
		{"newline", pkgTarget("a\nb", "1.0"), ErrInvalidName},
		{"empty version", pkgTarget("crush", " "), ErrEmptyVersion},
		{"bad kind", UpdateTarget{Kind: "tarball", Name: "x", CurrentVersion: "1"}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestNewPipelineContextNormalisesLegacyKind(t *testing.T) {
	dir := newRepo(t, "crush")
	pc := newContext(t, dir, UpdateTarget{Kind: "flake-input", Name: "nixpkgs", CurrentVersion: "abc"}, nil)
	assert.Equal(t, KindExternalInput, pc.Target().Kind)
}

func TestPipelineContextAccessorsReturnCopies(t *testing.T) {
	dir := newRepo(t, "crush")
	pc := newContext(t, dir, pkgTarget("crush", "1.0"), map[string]string{
		"PR_LABELS":      "deps, bot",
		"SMOKE_PACKAGES": "crush droid",
	})

	labels := pc.Labels()
	labels[0] = "mutated"
	assert.Equal(t, []string{"deps", "bot"}, pc.Labels())

	smoke := pc.SmokePackages()
	smoke[0] = "mutated"
	assert.Equal(t, []string{"crush", "droid"}, pc.SmokePackages())

	env := pc.Environment()
	env["NIX_PATH"] = "mutated"
	assert.Equal(t, config.NixPath, pc.Environment()["NIX_PATH"])
	assert.Equal(t, "test-token", pc.Environment()["GH_TOKEN"])
}

func TestNewPipelineContextRejectsInvalidTarget(t *testing.T) {
	rt, err := config.Resolve(config.Default(), t.TempDir(), lookupFrom(map[string]string{"GH_TOKEN": "x"}))
	require.NoError(t, err)

	_, err = NewPipelineContext(pkgTarget("../etc", "1"), rt)
	assert.ErrorIs(t, err, ErrInvalidName)
}
