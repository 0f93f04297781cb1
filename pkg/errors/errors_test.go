package errors_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	xe "github.com/amrdata/amrportal/pkg/errors"
)

type MyErr struct{}

func (MyErr) Error() string {
	return "error type for test"
}

func createError(message string) error {
	return xe.New(message)
}

func TestNewError(t *testing.T) {
	t.Run("it knows location where it is created.", func(t *testing.T) {
		testee := createError("test error")
		errMessage := testee.Error()

		_, thisFile, _, _ := runtime.Caller(0)

		if !strings.Contains(errMessage, "createError") {
			t.Errorf("it does not know function name: %s", errMessage)
		}

		if !strings.Contains(errMessage, filepath.Base(thisFile)) {
			t.Errorf("it does not know file (%s): %s", thisFile, errMessage)
		}

		var ewc *xe.ErrWithCaller
		if !errors.As(testee, &ewc) {
			t.Fatalf("it is not ErrWithCaller: %T", testee)
		}
		if ewc.File() != thisFile {
			t.Errorf("unexpected file: %s", ewc.File())
		}
	})

	t.Run("it supports errors protocol", func(t *testing.T) {
		rootError := MyErr{}

		err := xe.Wrap(
			fmt.Errorf(
				"%w",
				fmt.Errorf("%w", rootError),
			),
		)

		if !errors.Is(err, rootError) {
			t.Error("it does not support unwrapping.")
		}
	})

	t.Run("it passes nil through", func(t *testing.T) {
		if err := xe.Wrap(nil); err != nil {
			t.Errorf("nil is wrapped: %v", err)
		}
		if err := xe.WrapWithNote("note", nil); err != nil {
			t.Errorf("nil is wrapped: %v", err)
		}
		if err := xe.Notef(nil, "%d", 1); err != nil {
			t.Errorf("nil is wrapped: %v", err)
		}
	})

	t.Run("note is shown in message", func(t *testing.T) {
		err := xe.Notef(MyErr{}, "loading %s", "dataset 42")
		if !strings.Contains(err.Error(), "(loading dataset 42)") {
			t.Errorf("note is missing: %s", err.Error())
		}
	})
}
