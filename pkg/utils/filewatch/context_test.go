package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amrdata/amrportal/pkg/utils/filewatch"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitDone(t *testing.T, ctx context.Context) bool {
	t.Helper()
	select {
	case <-ctx.Done():
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

func TestUntilModifyContext(t *testing.T) {
	t.Run("when a watched file is written, it cancels context with ErrModified", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "portal.yaml")
		if err := os.WriteFile(file, []byte("a: 1"), 0644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := ctx.Err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := os.WriteFile(file, []byte("a: 2"), 0644); err != nil {
			t.Fatal(err)
		}

		if !waitDone(t, ctx) {
			t.Fatal("context is not canceled")
		}
		if cause := context.Cause(ctx); !errors.Is(cause, filewatch.ErrModified) {
			t.Errorf("unexpected cause: %v", cause)
		}
	})

	t.Run("when a sibling file is written, it keeps context alive", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "portal.yaml")
		other := filepath.Join(dir, "other.txt")
		if err := os.WriteFile(file, []byte("a: 1"), 0644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		select {
		case <-ctx.Done():
			t.Fatalf("context is canceled: %v", context.Cause(ctx))
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("when cancel is called, context is canceled without ErrModified", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "map.geojson")

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file, "")
		if err != nil {
			t.Fatal(err)
		}
		cancel()

		if !waitDone(t, ctx) {
			t.Fatal("context is not canceled")
		}
		if errors.Is(context.Cause(ctx), filewatch.ErrModified) {
			t.Errorf("unexpected cause: %v", context.Cause(ctx))
		}
	})
}
