package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/appspec/internal/expressions"
	"github.com/rendis/appspec/internal/loader"
	"github.com/rendis/appspec/internal/logging"
	"github.com/rendis/appspec/internal/secrets"
	"github.com/rendis/appspec/internal/store"
	"github.com/rendis/appspec/pkg/schema"
)

const hiddenValue = "<hidden>"

// handleValidateSpec validates one app spec and caches it when valid. The
// report is returned whether or not the spec was accepted.
func (s *Server) handleValidateSpec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := req.RequireString("app")
	if err != nil {
		return mcp.NewToolResultError("app is required"), nil
	}
	if s.loader == nil {
		return mcp.NewToolResultError("spec validation is not configured"), nil
	}
	src := loader.Source{
		App:      app,
		Document: mcp.ParseStringMap(req, "document", nil),
		Path:     req.GetString("path", ""),
		BaseURI:  req.GetString("base_uri", ""),
	}
	if src.Document == nil && src.Path == "" {
		return mcp.NewToolResultError("either document or path is required"), nil
	}

	res := s.loader.Load(ctx, src)
	if res.Err == nil {
		s.specs.Put(app, res.Spec)
	}
	out := map[string]any{"report": res.Report}
	if res.SaveErr != nil {
		out["save_error"] = res.SaveErr.Error()
	}
	return marshalResult(out)
}

// handleValidateArguments resolves and validates the arguments of one
// callable declared in a cached spec.
func (s *Server) handleValidateArguments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := req.RequireString("app")
	if err != nil {
		return mcp.NewToolResultError("app is required"), nil
	}
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	spec, ok := s.specs.Get(app)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("app %s has no validated spec; call appspec.validate_spec first", app)), nil
	}
	args, err := parseArguments(req.GetArguments()["arguments"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	var acc expressions.Accumulator
	if raw := mcp.ParseStringMap(req, "accumulator", nil); raw != nil {
		acc = expressions.MapAccumulator(raw)
	}

	ctx = logging.WithAction(logging.WithApp(ctx, app), name)
	var converted map[string]any
	switch kind {
	case "action":
		decl, found := spec.Actions[name]
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("app %s has no action %s", app, name)), nil
		}
		converted, err = s.validator.ValidateActionArguments(ctx, decl.Parameters, args, app, name, acc)
	case "condition":
		decl, found := spec.Conditions[name]
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("app %s has no condition %s", app, name)), nil
		}
		converted, err = s.validator.ValidateConditionArguments(ctx, decl.Parameters, args, name, acc)
	case "transform":
		decl, found := spec.Transforms[name]
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("app %s has no transform %s", app, name)), nil
		}
		converted, err = s.validator.ValidateTransformArguments(ctx, decl.Parameters, args, name, acc)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind: %s", kind)), nil
	}
	if err != nil {
		return marshalResult(failure(err))
	}
	return marshalResult(map[string]any{"valid": true, "arguments": converted})
}

// handleValidateDevice validates device fields, optionally opening sealed
// values first and sealing the encrypted ones after. Encrypted values are
// never echoed back in plaintext.
func (s *Server) handleValidateDevice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := req.RequireString("app")
	if err != nil {
		return mcp.NewToolResultError("app is required"), nil
	}
	deviceType, err := req.RequireString("device_type")
	if err != nil {
		return mcp.NewToolResultError("device_type is required"), nil
	}
	fields := mcp.ParseStringMap(req, "fields", nil)
	if fields == nil {
		return mcp.NewToolResultError("fields is required"), nil
	}
	spec, ok := s.specs.Get(app)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("app %s has no validated spec; call appspec.validate_spec first", app)), nil
	}
	device, ok := spec.Devices[deviceType]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("app %s has no device type %s", app, deviceType)), nil
	}

	open, seal := req.GetBool("open", false), req.GetBool("seal", false)
	deviceName := req.GetString("device_name", "")
	if open || seal {
		if deviceName == "" {
			return mcp.NewToolResultError("device_name is required with open or seal"), nil
		}
		if s.vault == nil {
			return mcp.NewToolResultError("no vault configured; set APPSPEC_VAULT_PASSPHRASE"), nil
		}
	}
	ctx = logging.WithDeviceType(logging.WithApp(ctx, app), deviceType)

	if open {
		opened, openErr := secrets.OpenDeviceFields(ctx, s.vault, device, app, deviceName, fields)
		if openErr != nil {
			if schema.IsInvalidArgument(openErr) {
				return marshalResult(failure(openErr))
			}
			logging.LogWith(ctx, s.logger).Error("failed to open device fields", "error", openErr.Error())
			return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", openErr)), nil
		}
		fields = opened
	}

	values, err := s.validator.ValidateDeviceFields(device, fields, app, req.GetBool("validate_required", true))
	if err != nil {
		return marshalResult(failure(err))
	}

	if seal {
		sealed, sealErr := secrets.SealDeviceFields(ctx, s.vault, device, app, deviceName, values)
		if sealErr != nil {
			logging.LogWith(ctx, s.logger).Error("failed to seal device fields", "error", sealErr.Error())
			return mcp.NewToolResultError(fmt.Sprintf("seal failed: %v", sealErr)), nil
		}
		return marshalResult(map[string]any{"valid": true, "sealed": true, "fields": sealed})
	}
	return marshalResult(map[string]any{"valid": true, "fields": redactEncrypted(device, values)})
}

// handleForgetDevice deletes every sealed field of one device from the vault.
func (s *Server) handleForgetDevice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := req.RequireString("app")
	if err != nil {
		return mcp.NewToolResultError("app is required"), nil
	}
	deviceType, err := req.RequireString("device_type")
	if err != nil {
		return mcp.NewToolResultError("device_type is required"), nil
	}
	deviceName, err := req.RequireString("device_name")
	if err != nil {
		return mcp.NewToolResultError("device_name is required"), nil
	}
	if s.vault == nil {
		return mcp.NewToolResultError("no vault configured; set APPSPEC_VAULT_PASSPHRASE"), nil
	}

	ctx = logging.WithDeviceType(logging.WithApp(ctx, app), deviceType)
	n, err := secrets.ForgetDevice(ctx, s.vault, app, deviceType, deviceName)
	if err != nil {
		logging.LogWith(ctx, s.logger).Error("failed to forget device", "device", deviceName, "error", err.Error())
		return mcp.NewToolResultError(fmt.Sprintf("forget failed after %d secrets: %v", n, err)), nil
	}
	logging.LogWith(ctx, s.logger).Info("device secrets deleted", "device", deviceName, "count", n)
	return marshalResult(map[string]any{"app": app, "device_type": deviceType, "device_name": deviceName, "deleted": n})
}

// handleReports fetches, lists or purges stored reports.
func (s *Server) handleReports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no report store configured"), nil
	}
	app := req.GetString("app", "")

	if id := req.GetString("id", ""); id != "" {
		report, err := s.store.GetReport(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("report lookup failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"report": report})
	}

	if req.GetBool("purge", false) {
		if app == "" {
			return mcp.NewToolResultError("app is required with purge"), nil
		}
		n, err := s.store.DeleteReports(ctx, app)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("purge failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"app": app, "deleted": n})
	}

	if req.GetBool("latest", false) {
		if app == "" {
			return mcp.NewToolResultError("app is required with latest"), nil
		}
		report, err := s.store.LatestReport(ctx, app)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("report lookup failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"report": report})
	}

	filter := store.ReportFilter{App: app, Limit: req.GetInt("limit", 50)}
	if v := req.GetString("valid", ""); v != "" {
		valid, err := strconv.ParseBool(v)
		if err != nil {
			return mcp.NewToolResultError("valid must be true or false"), nil
		}
		filter.Valid = &valid
	}
	if since := req.GetString("since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("since must be RFC3339: %v", err)), nil
		}
		filter.Since = &t
	}
	reports, err := s.store.ListReports(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"reports": reports})
}

// --- Internal helpers ---

// parseArguments decodes the raw tool argument list into Arguments.
func parseArguments(raw any) ([]expressions.Argument, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var args []expressions.Argument
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	for i, a := range args {
		if a.Name == "" {
			return nil, fmt.Errorf("argument %d has no name", i)
		}
	}
	return args, nil
}

// failure renders a validation error as a tool result payload.
func failure(err error) map[string]any {
	out := map[string]any{"valid": false, "message": err.Error()}
	var appErr *schema.AppError
	if errors.As(err, &appErr) {
		out["code"] = appErr.Code
		out["message"] = appErr.Message
		if len(appErr.Errors) > 0 {
			out["errors"] = appErr.Errors
		}
	}
	return out
}

func redactEncrypted(device *schema.DeviceTypeApi, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for name, v := range values {
		out[name] = v
		if f, ok := device.Field(name); ok && f.Encrypted && v != nil && v != "" {
			out[name] = hiddenValue
		}
	}
	return out
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
