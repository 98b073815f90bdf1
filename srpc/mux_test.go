package srpc

import "testing"

type stubHandler struct {
	service string
	methods []string
}

func (s *stubHandler) GetServiceID() string   { return s.service }
func (s *stubHandler) GetMethodIDs() []string { return s.methods }
func (s *stubHandler) InvokeMethod(serviceID, methodID string, strm Stream) (bool, error) {
	return true, nil
}

func TestMux_RegisterAndLookup(t *testing.T) {
	mux := NewMux()
	h := &stubHandler{service: "svc.A", methods: []string{"Foo", "Bar"}}
	if err := mux.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !mux.HasService("svc.A") {
		t.Fatal("expected HasService to return true")
	}
	if !mux.HasServiceMethod("svc.A", "Foo") {
		t.Fatal("expected HasServiceMethod(svc.A, Foo) to return true")
	}
	if mux.HasServiceMethod("svc.A", "Baz") {
		t.Fatal("expected HasServiceMethod(svc.A, Baz) to return false")
	}

	found, err := mux.InvokeMethod("svc.A", "Foo", nil)
	if err != nil || !found {
		t.Fatalf("InvokeMethod(svc.A, Foo): found=%v err=%v", found, err)
	}

	// method-only lookup (empty service) scans all registered services.
	found, err = mux.InvokeMethod("", "Bar", nil)
	if err != nil || !found {
		t.Fatalf("InvokeMethod(\"\", Bar): found=%v err=%v", found, err)
	}
}

func TestMux_RegisterEmptyServiceID(t *testing.T) {
	mux := NewMux()
	err := mux.Register(&stubHandler{methods: []string{"Foo"}})
	if err != ErrEmptyServiceId {
		t.Fatalf("expected ErrEmptyServiceId, got %v", err)
	}
}

func TestMux_UnknownMethodReturnsUnimplemented(t *testing.T) {
	mux := NewMux()
	found, err := mux.InvokeMethod("svc.A", "Nope", nil)
	if found {
		t.Fatal("expected found=false")
	}
	if err != ErrUnimplemented {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
}

func TestMux_OnlyFirstFallbackIsTried(t *testing.T) {
	mux := NewMux()
	var calls []string
	mux.AddFallback(InvokerFunc(func(service, method string, strm Stream) (bool, error) {
		calls = append(calls, "first")
		return false, nil
	}))
	mux.AddFallback(InvokerFunc(func(service, method string, strm Stream) (bool, error) {
		calls = append(calls, "second")
		return true, nil
	}))

	found, err := mux.InvokeMethod("svc.X", "Y", nil)
	if err != nil {
		t.Fatalf("InvokeMethod: %v", err)
	}
	if found {
		t.Fatal("expected found=false: only the first fallback is ever tried")
	}
	if len(calls) != 1 || calls[0] != "first" {
		t.Fatalf("expected only the first fallback to run, got %v", calls)
	}
}
