package logger

import "time"

// OperationTimer logs how long one operation took
type OperationTimer struct {
	module    string
	operation string
	start     time.Time
	fields    []interface{} // key, value pairs in insertion order
}

// StartOperation starts timing
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{module: module, operation: operation, start: time.Now()}
}

// AddDetail attaches a field to the final log line
func (t *OperationTimer) AddDetail(key string, value interface{}) *OperationTimer {
	t.fields = append(t.fields, key, value)
	return t
}

// End logs the duration at debug level
func (t *OperationTimer) End() {
	LogDebug(t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", time.Since(t.start)).
		Fields(t.fields).
		Msg("Operation completed")
}

// EndWithError logs the duration and err at warn level
func (t *OperationTimer) EndWithError(err error) {
	LogWarn(t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", time.Since(t.start)).
		Fields(t.fields).
		Err(err).
		Msg("Operation failed")
}
