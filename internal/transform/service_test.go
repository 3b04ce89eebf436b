package transform

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/openbao"
)

// fakeBackend is an in-memory logical store. Paths in failWrites reject writes.
type fakeBackend struct {
	mu         sync.Mutex
	data       map[string]map[string]any
	failWrites map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: map[string]map[string]any{}, failWrites: map[string]bool{}}
}

func (f *fakeBackend) api() *openbao.MockMountAPI {
	return &openbao.MockMountAPI{
		ReadFunc: func(ctx context.Context, path string) (map[string]any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			d, ok := f.data[path]
			if !ok {
				return nil, &openbao.ResponseError{StatusCode: http.StatusNotFound}
			}
			return d, nil
		},
		WriteFunc: func(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failWrites[path] {
				return nil, &openbao.ResponseError{StatusCode: http.StatusForbidden, Errors: []string{"permission denied"}}
			}
			f.data[path] = body
			return nil, nil
		},
		DeleteFunc: func(ctx context.Context, path string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.data, path)
			return nil
		},
	}
}

func TestSaveTransformationAddsItselfToRoles(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	svc := NewService(fake.api(), "transform-test", logr.Discard())

	tr := NewTransformation()
	tr.Name = "foo"
	tr.Template = "builtin/creditcardnumber"
	tr.AllowedRoles = []string{"foo-role"}

	res, err := svc.SaveTransformation(ctx, tr, nil)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Empty(t, effect.Notifications(res.Effects))

	navs := effect.Navigations(res.Effects)
	require.Len(t, navs, 1)
	assert.Equal(t, RouteShow, navs[0].Route)
	assert.Equal(t, "foo", navs[0].Params["name"])

	role, err := svc.ReadRole(ctx, "foo-role")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, role.Transformations)
}

func TestSaveRoleAddsItselfToTransformations(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	svc := NewService(fake.api(), "transform-test", logr.Discard())

	tr := Transformation{Name: "b-transformation", Type: TypeTokenization}
	_, err := svc.SaveTransformation(ctx, tr, nil)
	require.NoError(t, err)

	res, err := svc.SaveRole(ctx, Role{Name: "role-test", Transformations: []string{"b-transformation"}}, nil)
	require.NoError(t, err)
	assert.True(t, res.Saved)

	got, err := svc.ReadTransformation(ctx, "b-transformation")
	require.NoError(t, err)
	assert.Equal(t, []string{"role-test"}, got.AllowedRoles)
}

func TestSaveTransformationSyncFailureIsInfo(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	svc := NewService(fake.api(), "transform-test", logr.Discard())

	tr := Transformation{Name: "c-transformation", Type: TypeTokenization, AllowedRoles: []string{"role-remove"}}
	_, err := svc.SaveTransformation(ctx, tr, nil)
	require.NoError(t, err)

	fake.failWrites["transform-test/role/role-remove"] = true

	previous := tr
	edited := tr
	edited.AllowedRoles = nil
	res, err := svc.SaveTransformation(ctx, edited, &previous)
	require.NoError(t, err)
	assert.True(t, res.Saved)

	notes := effect.Notifications(res.Effects)
	require.Len(t, notes, 1)
	assert.Equal(t, effect.LevelInfo, notes[0].Level)
	assert.Contains(t, notes[0].Message, "role-remove")

	got, err := svc.ReadTransformation(ctx, "c-transformation")
	require.NoError(t, err)
	assert.Empty(t, got.AllowedRoles)
}

func TestSaveRoleRemovesFromDroppedTransformation(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	svc := NewService(fake.api(), "tr", logr.Discard())

	_, err := svc.SaveTransformation(ctx, Transformation{Name: "t1", Type: TypeTokenization}, nil)
	require.NoError(t, err)
	first := Role{Name: "r", Transformations: []string{"t1"}}
	_, err = svc.SaveRole(ctx, first, nil)
	require.NoError(t, err)

	_, err = svc.SaveRole(ctx, Role{Name: "r"}, &first)
	require.NoError(t, err)

	got, err := svc.ReadTransformation(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.AllowedRoles)
}

func TestSaveRoleMissingTransformationIsInfo(t *testing.T) {
	svc := NewService(newFakeBackend().api(), "tr", logr.Discard())

	res, err := svc.SaveRole(context.Background(), Role{Name: "r", Transformations: []string{"ghost"}}, nil)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	notes := effect.Notifications(res.Effects)
	require.Len(t, notes, 1)
	assert.Equal(t, effect.LevelInfo, notes[0].Level)
}

func TestSaveRejectsImmutableAndBuiltin(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeBackend().api(), "tr", logr.Discard())

	prev := Transformation{Name: "a", Type: TypeFPE}
	_, err := svc.SaveTransformation(ctx, Transformation{Name: "a", Type: TypeMasking}, &prev)
	require.ErrorIs(t, err, ErrImmutable)

	prevTpl := Template{Name: "my-template"}
	_, err = svc.SaveTemplate(ctx, Template{Name: "renamed", Type: "regex", Pattern: `(\d)`}, &prevTpl)
	require.ErrorIs(t, err, ErrImmutable)

	_, err = svc.SaveAlphabet(ctx, Alphabet{Name: "builtin/numeric", Alphabet: "0123456789"}, nil)
	require.ErrorIs(t, err, ErrBuiltin)
}

func TestSaveTemplateAndAlphabet(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeBackend().api(), "tr", logr.Discard())

	res, err := svc.SaveAlphabet(ctx, Alphabet{Name: "vowels-only", Alphabet: "aeiou"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Saved)

	a, err := svc.ReadAlphabet(ctx, "vowels-only")
	require.NoError(t, err)
	assert.Equal(t, "aeiou", a.Alphabet)

	tpl := NewTemplate()
	tpl.Name = "my-template"
	tpl.Pattern = `(\d{4})`
	tpl.Alphabet = "builtin/numeric"
	res, err = svc.SaveTemplate(ctx, tpl, nil)
	require.NoError(t, err)
	assert.True(t, res.Saved)

	got, err := svc.ReadTemplate(ctx, "my-template")
	require.NoError(t, err)
	assert.Equal(t, tpl, got)
}

func TestSaveWriteFailureIsDanger(t *testing.T) {
	fake := newFakeBackend()
	fake.failWrites["tr/alphabet/x"] = true
	svc := NewService(fake.api(), "tr", logr.Discard())

	res, err := svc.SaveAlphabet(context.Background(), Alphabet{Name: "x", Alphabet: "xyz"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Saved)
	notes := effect.Notifications(res.Effects)
	require.Len(t, notes, 1)
	assert.Equal(t, effect.LevelDanger, notes[0].Level)
	assert.Equal(t, "permission denied", notes[0].Message)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBackend()
	svc := NewService(fake.api(), "tr", logr.Discard())
	_, err := svc.SaveAlphabet(ctx, Alphabet{Name: "x", Alphabet: "xyz"}, nil)
	require.NoError(t, err)

	effects := svc.Delete(ctx, ItemAlphabet, "x")
	navs := effect.Navigations(effects)
	require.Len(t, navs, 1)
	assert.Equal(t, "alphabet", navs[0].Params["tab"])

	_, err = svc.ReadAlphabet(ctx, "x")
	require.True(t, openbao.IsNotFound(err))
}
