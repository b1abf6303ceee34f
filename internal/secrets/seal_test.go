package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/appspec/pkg/schema"
)

func serverDevice(t *testing.T) *schema.DeviceTypeApi {
	t.Helper()
	devices, err := schema.ParseDevices(map[string]any{
		"server": map[string]any{
			"fields": []any{
				map[string]any{"name": "host", "type": "string", "required": true},
				map[string]any{"name": "port", "type": "integer"},
				map[string]any{"name": "password", "type": "string", "encrypted": true},
				map[string]any{"name": "pin", "type": "integer", "encrypted": true},
			},
		},
	})
	require.NoError(t, err)
	return devices["server"]
}

func TestSealDeviceFields_ReplacesEncryptedValues(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	values := map[string]any{"host": "example.com", "port": int64(22), "password": "hunter2", "pin": int64(1234)}

	sealed, err := SealDeviceFields(ctx, v, serverDevice(t), "HelloWorld", "prod", values)
	require.NoError(t, err)

	assert.Equal(t, "example.com", sealed["host"])
	assert.Equal(t, int64(22), sealed["port"])
	assert.Equal(t, "vault:device/HelloWorld/server/prod/password", sealed["password"])
	assert.Equal(t, "vault:device/HelloWorld/server/prod/pin", sealed["pin"])
	assert.Equal(t, "hunter2", values["password"], "input must not be mutated")

	assert.Len(t, s.data, 2)
	for _, raw := range s.data {
		assert.NotContains(t, string(raw), "hunter2")
	}
}

func TestSealDeviceFields_SkipsBlankAndOwnReference(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	values := map[string]any{"host": "h", "password": "", "pin": "vault:device/HelloWorld/server/prod/pin"}

	sealed, err := SealDeviceFields(ctx, v, serverDevice(t), "HelloWorld", "prod", values)
	require.NoError(t, err)
	assert.Equal(t, values, sealed)
	assert.Empty(t, s.data)
}

func TestSealDeviceFields_ForeignReferenceIsSealedAsLiteral(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	foreign := DeviceFieldKey("Other", "server", "prod", "password")
	require.NoError(t, v.Store(ctx, foreign, []byte(`"othersecret"`)))

	values := map[string]any{"host": "h", "password": SealedPrefix + foreign}
	sealed, err := SealDeviceFields(ctx, v, serverDevice(t), "HelloWorld", "prod", values)
	require.NoError(t, err)
	assert.Equal(t, "vault:device/HelloWorld/server/prod/password", sealed["password"])
	assert.Len(t, s.data, 2)

	opened, err := OpenDeviceFields(ctx, v, serverDevice(t), "HelloWorld", "prod", sealed)
	require.NoError(t, err)
	assert.Equal(t, SealedPrefix+foreign, opened["password"])
}

func TestOpenDeviceFields_RoundTrip(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()
	values := map[string]any{"host": "h", "password": "hunter2", "pin": int64(1234)}

	sealed, err := SealDeviceFields(ctx, v, serverDevice(t), "HelloWorld", "prod", values)
	require.NoError(t, err)

	opened, err := OpenDeviceFields(ctx, v, serverDevice(t), "HelloWorld", "prod", sealed)
	require.NoError(t, err)
	assert.Equal(t, values, opened)
}

func TestOpenDeviceFields_RejectsOtherDeviceKeys(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()
	device := serverDevice(t)

	_, err := SealDeviceFields(ctx, v, device, "Other", "prod", map[string]any{"password": "othersecret"})
	require.NoError(t, err)
	_, err = SealDeviceFields(ctx, v, device, "HelloWorld", "staging", map[string]any{"password": "stagingsecret"})
	require.NoError(t, err)

	for _, ref := range []string{
		"vault:device/Other/server/prod/password",
		"vault:device/HelloWorld/server/staging/password",
		"vault:device/HelloWorld/server/prod/pin",
	} {
		opened, err := OpenDeviceFields(ctx, v, device, "HelloWorld", "prod", map[string]any{"password": ref})
		require.Error(t, err, ref)
		assert.True(t, schema.IsInvalidArgument(err), ref)
		assert.Nil(t, opened)
		assert.NotContains(t, err.Error(), "othersecret")
	}
}

func TestOpenDeviceFields_IgnoresPlainFields(t *testing.T) {
	v, _ := testVault(t)
	values := map[string]any{"host": "vault:device/Other/server/prod/password"}

	opened, err := OpenDeviceFields(context.Background(), v, serverDevice(t), "HelloWorld", "prod", values)
	require.NoError(t, err)
	assert.Equal(t, values, opened)
}

func TestOpenDeviceFields_MissingSecret(t *testing.T) {
	v, _ := testVault(t)
	_, err := OpenDeviceFields(context.Background(), v, serverDevice(t), "HelloWorld", "prod",
		map[string]any{"password": "vault:device/HelloWorld/server/prod/password"})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestForgetDevice(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	device := serverDevice(t)

	_, err := SealDeviceFields(ctx, v, device, "HelloWorld", "prod", map[string]any{"password": "a", "pin": int64(1)})
	require.NoError(t, err)
	_, err = SealDeviceFields(ctx, v, device, "HelloWorld", "staging", map[string]any{"password": "b"})
	require.NoError(t, err)

	n, err := ForgetDevice(ctx, v, "HelloWorld", "server", "prod")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, s.data, 1)
	assert.Contains(t, s.data, "device/HelloWorld/server/staging/password")
}

func TestIsSealed(t *testing.T) {
	assert.True(t, IsSealed("vault:device/a/b/c/d"))
	assert.False(t, IsSealed("plain"))
	assert.False(t, IsSealed(42))
}
