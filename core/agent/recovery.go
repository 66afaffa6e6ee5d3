package agent

import (
	"fmt"
	"runtime/debug"
)

// SafeExecute runs fn with panic recovery. A panic is logged with its stack
// and converted into an error naming the operation.
func SafeExecute(logger Logger, operation string, fn func() error) error {
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("panic_recovered",
						"operation", operation,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
				}
				err = fmt.Errorf("%s panicked: %v", operation, r)
			}
		}()
		err = fn()
	}()

	return err
}

// SafeExecuteWithResult is SafeExecute for functions that also return a value.
func SafeExecuteWithResult[T any](logger Logger, operation string, fn func() (T, error)) (T, error) {
	var result T
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("panic_recovered",
						"operation", operation,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
				}
				err = fmt.Errorf("%s panicked: %v", operation, r)
			}
		}()
		result, err = fn()
	}()

	return result, err
}

// SafeGo runs fn in a goroutine with panic recovery. onPanic, if non-nil,
// is called with the recovered value.
func SafeGo(logger Logger, operation string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("goroutine_panic_recovered",
						"operation", operation,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
				}
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
