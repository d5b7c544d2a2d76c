package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	logOutput  io.Writer
	markerFile string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON log stream, e.g. to stderr when stdout
// carries a protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithMarkerFile stores the recurring-offer marker in a YAML file instead of
// the database.
func WithMarkerFile(path string) Option {
	return func(a *application) {
		a.markerFile = path
	}
}
