package ldap

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/validation"
)

func TestCreateStaticRole(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	api := &openbao.MockMountAPI{
		WriteFunc: func(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
			gotPath = path
			gotBody = data
			return nil, nil
		},
	}

	form := NewCreateForm(api, "ldap-test", logr.Discard())
	assert.Equal(t, RoleTypeStatic, form.Role().Type)
	assert.False(t, form.IsEditing())

	require.NoError(t, form.SetRole(Role{
		Type:           RoleTypeStatic,
		Name:           "test-role",
		DN:             "foo",
		Username:       "bar",
		RotationPeriod: 5 * time.Second,
	}))

	res, err := form.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, "ldap-test/static-role/test-role", gotPath)
	assert.Equal(t, map[string]any{"dn": "foo", "username": "bar", "rotation_period": "5s"}, gotBody)

	navs := effect.Navigations(res.Effects)
	require.Len(t, navs, 1)
	assert.Equal(t, RouteRoleDetails, navs[0].Route)
	assert.Equal(t, map[string]string{"type": "static", "name": "test-role"}, navs[0].Params)
	assert.True(t, form.IsEditing())
}

func TestCreateRoleValidationMakesNoRequest(t *testing.T) {
	writes := 0
	api := &openbao.MockMountAPI{
		WriteFunc: func(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
			writes++
			return nil, nil
		},
	}

	form := NewCreateForm(api, "ldap-test", logr.Discard())
	_, err := form.Save(context.Background())
	verr, ok := validation.As(err)
	require.True(t, ok)
	assert.Equal(t, "There are 3 errors with this form.", verr.Error())

	require.NoError(t, form.SetRole(Role{Type: RoleTypeDynamic}))
	_, err = form.Save(context.Background())
	verr, ok = validation.As(err)
	require.True(t, ok)
	assert.Equal(t, "There are 3 errors with this form.", verr.Error())
	assert.Equal(t, 0, writes)
}

func TestEditStaticRole(t *testing.T) {
	var gotBody map[string]any
	api := &openbao.MockMountAPI{
		ReadFunc: func(ctx context.Context, path string) (map[string]any, error) {
			assert.Equal(t, "ldap-test/static-role/static-role", path)
			return map[string]any{
				"dn":              "cn=old",
				"username":        "old",
				"rotation_period": float64(10),
			}, nil
		},
		WriteFunc: func(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
			gotBody = data
			return nil, nil
		},
	}

	form, err := LoadEditForm(context.Background(), api, "ldap-test", RoleTypeStatic, "static-role", logr.Discard())
	require.NoError(t, err)
	assert.True(t, form.IsEditing())
	assert.Equal(t, 10*time.Second, form.Role().RotationPeriod)

	role := form.Role()
	role.Type = RoleTypeDynamic
	require.ErrorIs(t, form.SetRole(role), ErrImmutable)

	role = form.Role()
	role.Name = "renamed"
	require.ErrorIs(t, form.SetRole(role), ErrImmutable)

	role = form.Role()
	role.DN = "foo"
	role.Username = "bar"
	role.RotationPeriod = 30 * time.Second
	require.NoError(t, form.SetRole(role))

	res, err := form.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, map[string]any{"dn": "foo", "username": "bar", "rotation_period": "30s"}, gotBody)
}

func TestSaveRejectedShowsDanger(t *testing.T) {
	api := &openbao.MockMountAPI{
		WriteFunc: func(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
			return nil, &openbao.ResponseError{StatusCode: http.StatusBadRequest, Errors: []string{"unable to connect to LDAP"}}
		},
	}
	form := NewCreateForm(api, "ldap", logr.Discard())
	require.NoError(t, form.SetRole(Role{Type: RoleTypeStatic, Name: "r", Username: "u", RotationPeriod: time.Minute}))

	res, err := form.Save(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Saved)
	notes := effect.Notifications(res.Effects)
	require.Len(t, notes, 1)
	assert.Equal(t, effect.LevelDanger, notes[0].Level)
	assert.Equal(t, "unable to connect to LDAP", notes[0].Message)
	assert.False(t, form.IsEditing())
}

func TestCancelReturnsToRoles(t *testing.T) {
	form := NewCreateForm(&openbao.MockMountAPI{}, "ldap", logr.Discard())
	navs := effect.Navigations(form.Cancel())
	require.Len(t, navs, 1)
	assert.Equal(t, RouteRoles, navs[0].Route)
}

func TestLoadEditFormNotFound(t *testing.T) {
	api := &openbao.MockMountAPI{
		ReadFunc: func(ctx context.Context, path string) (map[string]any, error) {
			return nil, &openbao.ResponseError{StatusCode: http.StatusNotFound}
		},
	}
	_, err := LoadEditForm(context.Background(), api, "ldap", RoleTypeDynamic, "missing", logr.Discard())
	require.Error(t, err)
	assert.True(t, openbao.IsNotFound(err))
}
