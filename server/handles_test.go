package server

import (
	"testing"
	"time"

	"github.com/chazu/jscore/jsc"
)

// newObjectHandle evaluates src in session and registers the result.
func newObjectHandle(t *testing.T, env *testEnv, session *Session, src string) string {
	t.Helper()
	result, err := env.Worker.Do(func(*jsc.VM) interface{} {
		v, err := session.Context.EvaluateScript(src, jsc.Object{}, nil, 1)
		if err != nil {
			return err
		}
		return env.Handles.Create(v, session.Context, "object", src, session.ID)
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	if err, ok := result.(error); ok {
		t.Fatalf("EvaluateScript(%s): %v", src, err)
	}
	return result.(string)
}

func protectedCount(t *testing.T, env *testEnv, session *Session) int {
	t.Helper()
	result, err := env.Worker.Do(func(*jsc.VM) interface{} {
		return session.Context.ProtectedCount()
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	return result.(int)
}

func TestHandleStore_CreateProtects(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()
	session, err := env.Sessions.Create("")
	if err != nil {
		t.Fatal(err)
	}

	id := newObjectHandle(t, env, session, "({})")
	if n := protectedCount(t, env, session); n != 1 {
		t.Errorf("protected = %d, want 1", n)
	}

	value, owner, ok := env.Handles.Lookup(id)
	if !ok {
		t.Fatal("Lookup should find the handle")
	}
	if owner != session.ID {
		t.Errorf("owner = %q, want %q", owner, session.ID)
	}
	if value.IsEmpty() {
		t.Error("Lookup returned the empty value")
	}

	if err := env.Handles.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n := protectedCount(t, env, session); n != 0 {
		t.Errorf("protected after release = %d, want 0", n)
	}
	if _, _, ok := env.Handles.Lookup(id); ok {
		t.Error("Lookup should fail after release")
	}
}

func TestHandleStore_UniqueIDs(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()
	session, err := env.Sessions.Create("")
	if err != nil {
		t.Fatal(err)
	}

	a := newObjectHandle(t, env, session, "({})")
	b := newObjectHandle(t, env, session, "({})")
	if a == b {
		t.Errorf("two handles share ID %q", a)
	}
	if env.Handles.Len() != 2 {
		t.Errorf("Len = %d, want 2", env.Handles.Len())
	}
}

func TestHandleStore_SameValueTwice(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()
	session, err := env.Sessions.Create("")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Worker.Do(func(*jsc.VM) interface{} {
		_, err := session.Context.EvaluateScript("var shared = {}", jsc.Object{}, nil, 1)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	a := newObjectHandle(t, env, session, "shared")
	b := newObjectHandle(t, env, session, "shared")

	env.Handles.Release(a)
	if n := protectedCount(t, env, session); n != 1 {
		t.Errorf("protected = %d, want 1 while the second handle lives", n)
	}
	env.Handles.Release(b)
	if n := protectedCount(t, env, session); n != 0 {
		t.Errorf("protected = %d, want 0", n)
	}
}

func TestHandleStore_ReleaseUnknown(t *testing.T) {
	if err := testHandles.Release("h-does-not-exist"); err != nil {
		t.Errorf("Release of unknown handle = %v, want nil", err)
	}
}

func TestHandleStore_Sweep(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()
	session, err := env.Sessions.Create("")
	if err != nil {
		t.Fatal(err)
	}

	newObjectHandle(t, env, session, "({})")
	newObjectHandle(t, env, session, "[]")

	if n := env.Handles.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep(1h) removed %d, want 0", n)
	}

	time.Sleep(5 * time.Millisecond)
	if n := env.Handles.Sweep(time.Millisecond); n != 2 {
		t.Errorf("Sweep(1ms) removed %d, want 2", n)
	}
	if n := protectedCount(t, env, session); n != 0 {
		t.Errorf("protected after sweep = %d, want 0", n)
	}
}

func TestHandleStore_LookupRefreshes(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()
	session, err := env.Sessions.Create("")
	if err != nil {
		t.Fatal(err)
	}

	id := newObjectHandle(t, env, session, "({})")
	time.Sleep(20 * time.Millisecond)
	env.Handles.Lookup(id)

	if n := env.Handles.Sweep(10 * time.Millisecond); n != 0 {
		t.Errorf("Sweep removed %d recently used handles, want 0", n)
	}
}

func TestHandleStore_StartSweeper(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()
	session, err := env.Sessions.Create("")
	if err != nil {
		t.Fatal(err)
	}

	newObjectHandle(t, env, session, "({})")
	stop := env.Handles.StartSweeper(5*time.Millisecond, time.Millisecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for env.Handles.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove the expired handle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()
}
