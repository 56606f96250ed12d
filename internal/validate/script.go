package validate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

const scriptFnName = "ytmirrorValidate"

// Script runs a JavaScript predicate `function(status, body) { ... }` in an
// embedded VM. A truthy return accepts the body; a string return or a throw
// rejects it with that reason.
type Script struct {
	mu sync.Mutex
	vm *goja.Runtime
	fn goja.Callable
}

// NewScript compiles source, which must evaluate to a function.
func NewScript(source string) (*Script, error) {
	vm := goja.New()
	if _, err := vm.RunString(scriptFnName + "=(" + source + ")"); err != nil {
		return nil, fmt.Errorf("compile validator script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get(scriptFnName))
	if !ok {
		return nil, errors.New("validator script is not a function")
	}
	return &Script{vm: vm, fn: fn}, nil
}

func (s *Script) Validate(status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.fn(goja.Undefined(), s.vm.ToValue(status), s.vm.ToValue(string(body)))
	if err != nil {
		var jsErr *goja.Exception
		if errors.As(err, &jsErr) {
			return reject("script: %s", jsErr.Value().String())
		}
		return reject("script: %v", err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return reject("script returned no verdict")
	}
	if reason, ok := out.Export().(string); ok {
		if reason == "" {
			return nil
		}
		return reject("%s", reason)
	}
	if !out.ToBoolean() {
		return reject("script returned false")
	}
	return nil
}
