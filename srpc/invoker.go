package srpc

// Invoker dispatches a call to a handler if it recognizes the
// service/method. The split return lets callers distinguish "not found
// here" from "found and failed": fallback dispatch in Mux depends on it.
type Invoker interface {
	// InvokeMethod looks up the handler for serviceID/methodID and, if
	// found, invokes it with strm. Returns found=false (with a nil error or
	// ErrUnimplemented) if this Invoker does not recognize the
	// service/method; otherwise returns (true, err) with the handler's
	// result.
	InvokeMethod(serviceID, methodID string, strm Stream) (bool, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(serviceID, methodID string, strm Stream) (bool, error)

// InvokeMethod implements Invoker.
func (f InvokerFunc) InvokeMethod(serviceID, methodID string, strm Stream) (bool, error) {
	return f(serviceID, methodID, strm)
}
