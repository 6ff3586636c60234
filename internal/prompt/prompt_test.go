package prompt

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minion/internal/config"
	"minion/internal/sanitizer"
)

type scripted struct {
	answers  []string
	defaults []string
	secret   string
}

func (s *scripted) Ask(_ string, def string) string {
	s.defaults = append(s.defaults, def)
	if len(s.answers) == 0 {
		return def
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a
}

func (s *scripted) Secret(string) string { return s.secret }

func newStore(t *testing.T) *config.Store {
	t.Helper()
	s, err := config.Load(afero.NewMemMapFs(), config.DefaultFile)
	require.NoError(t, err)
	return s
}

func TestResolveInteractiveUsesStoredDefault(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set(config.KeyHost, "old.example.com"))
	// prompter returns the default on an empty answer
	asker := &scripted{}
	r := &Resolver{Store: store, Asker: asker, Interactive: true}

	v, err := r.Resolve(config.KeyHost, "VPS host", sanitizer.Host)
	require.NoError(t, err)
	assert.Equal(t, "old.example.com", v)
	assert.Equal(t, []string{"old.example.com"}, asker.defaults)
}

func TestResolveInteractiveRecordsAnswer(t *testing.T) {
	store := newStore(t)
	asker := &scripted{answers: []string{"  new.example.com "}}
	r := &Resolver{Store: store, Asker: asker, Interactive: true}

	v, err := r.Resolve(config.KeyHost, "VPS host", sanitizer.Host)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", v)
	got, _ := store.Get(config.KeyHost)
	assert.Equal(t, "new.example.com", got)
}

func TestResolveInteractiveRetriesInvalidInput(t *testing.T) {
	store := newStore(t)
	asker := &scripted{answers: []string{"Bad Name", "blog"}}
	r := &Resolver{Store: store, Asker: asker, Interactive: true}

	v, err := r.Resolve(config.KeyAppName, "App name", sanitizer.AppName)
	require.NoError(t, err)
	assert.Equal(t, "blog", v)

	asker = &scripted{answers: []string{"x y", "x y", "x y", "blog"}}
	r.Asker = asker
	_, err = r.Resolve(config.KeyAppName, "App name", sanitizer.AppName)
	assert.ErrorIs(t, err, sanitizer.ErrInvalid)
	assert.Len(t, asker.answers, 1, "gives up after three attempts")
}

func TestResolveUnattended(t *testing.T) {
	store := newStore(t)
	r := &Resolver{Store: store, Asker: &scripted{}, Interactive: false}

	_, err := r.Resolve(config.KeyHost, "VPS host", sanitizer.Host)
	assert.True(t, errors.Is(err, ErrMissing))

	require.NoError(t, store.Set(config.KeyHost, "vps.example.com"))
	v, err := r.Resolve(config.KeyHost, "VPS host", sanitizer.Host)
	require.NoError(t, err)
	assert.Equal(t, "vps.example.com", v)

	require.NoError(t, store.Set(config.KeyHost, "not a host"))
	_, err = r.Resolve(config.KeyHost, "VPS host", sanitizer.Host)
	assert.ErrorIs(t, err, sanitizer.ErrInvalid)
}

func TestOptional(t *testing.T) {
	store := newStore(t)
	parse := func(v string) error {
		_, err := config.ParseVolumes(v)
		return err
	}

	r := &Resolver{Store: store, Asker: &scripted{answers: []string{""}}, Interactive: true}
	v, err := r.Optional(config.KeyVolumes, "Volumes", parse)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	r.Asker = &scripted{answers: []string{"badformat", "data:/data"}}
	v, err = r.Optional(config.KeyVolumes, "Volumes", parse)
	require.NoError(t, err)
	assert.Equal(t, "data:/data", v)

	r.Interactive = false
	v, err = r.Optional(config.KeyVolumes, "Volumes", parse)
	require.NoError(t, err)
	assert.Equal(t, "data:/data", v)
}

func TestSecret(t *testing.T) {
	r := &Resolver{Store: newStore(t), Asker: &scripted{secret: "pw"}, Interactive: true}
	assert.Equal(t, "pw", r.Secret("Root password"))
	r.Interactive = false
	assert.Equal(t, "", r.Secret("Root password"))
}
