package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/rendis/appspec/pkg/schema"
)

// SealedPrefix marks a device field value that has been replaced by a vault key.
const SealedPrefix = "vault:"

// DeviceFieldKey is the vault key of one encrypted device field.
func DeviceFieldKey(app, deviceType, deviceName, field string) string {
	return fmt.Sprintf("device/%s/%s/%s/%s", app, deviceType, deviceName, field)
}

// IsSealed reports whether v is a vault reference produced by SealDeviceFields.
func IsSealed(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, SealedPrefix)
}

// sealedFor reports whether v is the vault reference of exactly key.
func sealedFor(v any, key string) bool {
	s, ok := v.(string)
	return ok && s == SealedPrefix+key
}

// SealDeviceFields stores the value of every encrypted field of device in the
// vault and returns a copy of values where each such value is replaced by its
// vault reference. Blank values and references to the field's own key are
// left as they are; any other value, including a reference to another key,
// is sealed as a literal. values is expected to have passed
// validation.ValidateDeviceFields.
func SealDeviceFields(ctx context.Context, v Vault, device *schema.DeviceTypeApi, app, deviceName string, values map[string]any) (map[string]any, error) {
	out := maps.Clone(values)
	if out == nil {
		out = map[string]any{}
	}
	for _, field := range device.Fields {
		if !field.Encrypted {
			continue
		}
		key := DeviceFieldKey(app, device.Name, deviceName, field.Name)
		value, ok := out[field.Name]
		if !ok || value == nil || value == "" || sealedFor(value, key) {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"device %s field %s cannot be sealed", deviceName, field.Name).WithCause(err)
		}
		if err := v.Store(ctx, key, raw); err != nil {
			return nil, err
		}
		out[field.Name] = SealedPrefix + key
	}
	return out, nil
}

// OpenDeviceFields reverses SealDeviceFields for one device, resolving every
// sealed encrypted field from the vault. A reference to a key outside the
// field's own slot is rejected. Integral numbers come back as int64, other
// numbers as float64.
func OpenDeviceFields(ctx context.Context, v Vault, device *schema.DeviceTypeApi, app, deviceName string, values map[string]any) (map[string]any, error) {
	out := maps.Clone(values)
	if out == nil {
		out = map[string]any{}
	}
	for _, field := range device.Fields {
		value, ok := out[field.Name]
		if !ok || !field.Encrypted || !IsSealed(value) {
			continue
		}
		key := DeviceFieldKey(app, device.Name, deviceName, field.Name)
		if !sealedFor(value, key) {
			return nil, schema.InvalidArgument("Device %s field %s refers to a secret of another device", deviceName, field.Name)
		}
		raw, err := v.Resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeSealed(raw)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault, "secret %q is corrupt", key).WithCause(err)
		}
		out[field.Name] = decoded
	}
	return out, nil
}

// ForgetDevice deletes every sealed field stored for one device.
func ForgetDevice(ctx context.Context, v Vault, app, deviceType, deviceName string) (int, error) {
	keys, err := v.List(ctx, DeviceFieldKey(app, deviceType, deviceName, ""))
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := v.Delete(ctx, key); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

func decodeSealed(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	n, ok := value.(json.Number)
	if !ok {
		return value, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return n.Float64()
}
