package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	out    io.Writer
	// editor runs the edit command's editor on a file; tests replace it.
	editor func(path string) error
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where the view command writes documents.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithEditor replaces the external editor used by the edit command.
func WithEditor(fn func(path string) error) Option {
	return func(a *application) {
		a.editor = fn
	}
}
