package ports

import "context"

// Logger is the structured logger every component receives by injection.
// Fields are an optional map so call sites stay independent of the zap adapter;
// Error carries the error value separately so adapters can attach it as a typed field.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
