package core

// Logger is any service that can report application events.
// Args may carry an error, a map[string]interface{} of extra context and the acting Caller.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user an event is reported for.
type Person struct {
	ID    string
	Name  string
	Email string
}
