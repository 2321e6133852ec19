package interfaces

type CommandArgs interface{}

// Command is a generic RPC command that can be requested for execution with JSON arguments
type Command interface {
	// CreateArgs instantiates a JSON object that can be json.Unmarshal-ed into by the caller to provide
	// named arguments for the command; nil if the command takes none
	CreateArgs() CommandArgs
	// Execute executes the command given the arguments provided and returns a json.Marshal-able result
	Execute(args CommandArgs) (result interface{}, err error)
}

// CommandHandler returns the Command registered under a name
type CommandHandler interface {
	CommandFor(command string) (Command, error)
}
