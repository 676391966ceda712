package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/chazu/jscore/ffi"
	"github.com/chazu/jscore/jsc"
)

func TestVMWorker_Do(t *testing.T) {
	result, err := testWorker.Do(func(v *jsc.VM) interface{} {
		return v.Closed()
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if result.(bool) {
		t.Error("shared VM should be open")
	}
}

func TestVMWorker_RecoversPanic(t *testing.T) {
	_, err := testWorker.Do(func(*jsc.VM) interface{} {
		panic("kaboom")
	})
	if err == nil || err.Error() != "kaboom" {
		t.Errorf("Do error = %v, want kaboom", err)
	}

	// The worker must still be usable.
	result, err := testWorker.Do(func(*jsc.VM) interface{} { return 1 })
	if err != nil || result.(int) != 1 {
		t.Errorf("Do after panic = %v, %v", result, err)
	}
}

func TestVMWorker_RecoversStaleValue(t *testing.T) {
	env := newIsolatedEnv()
	defer env.Stop()

	a, err := env.Sessions.Create("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.Sessions.Create("b")
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.Worker.Do(func(*jsc.VM) interface{} {
		v := jsc.ValueWithNumber(a.Context, 1)
		return v.IsNumber(b.Context)
	})
	if !errors.Is(err, jsc.ErrStaleValue) {
		t.Errorf("Do error = %v, want ErrStaleValue", err)
	}
}

func TestVMWorker_Serializes(t *testing.T) {
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			testWorker.Do(func(*jsc.VM) interface{} {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestVMWorker_StopClosesVM(t *testing.T) {
	e := ffi.New()
	v := jsc.NewVM(jsc.WithEngine(e))
	w := NewVMWorker(v)

	w.Stop()
	w.Stop()

	if !v.Closed() {
		t.Error("Stop should close the VM")
	}
	if live := e.Stats().LiveGroups(); live != 0 {
		t.Errorf("live groups = %d, want 0", live)
	}
	if _, err := w.Do(func(*jsc.VM) interface{} { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop = %v, want ErrWorkerStopped", err)
	}
}
