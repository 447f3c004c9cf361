package commandstructure

// Command is a single byte-in/byte-out image processing step.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory creates a command from configuration parameters.
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig names a registered command together with its parameters.
type CommandConfig struct {
	Name   string
	Params map[string]any
}
