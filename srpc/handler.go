package srpc

// Handler is an Invoker that additionally declares the service id and
// method ids it implements, for registration with a Mux. Generated service
// code implements this interface once per service.
type Handler interface {
	Invoker

	// GetServiceID returns the fully-qualified service id this handler
	// implements, e.g. "echo.Echoer".
	GetServiceID() string
	// GetMethodIDs returns the method ids this handler implements.
	GetMethodIDs() []string
}
