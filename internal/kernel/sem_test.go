package kernel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestSemValidation(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	if _, err := k.NewSem("zero", 0, 0); err != ErrBadState {
		t.Fatalf("limit 0: %v, want ErrBadState", err)
	}
	if _, err := k.NewSem("over", 3, 2); err != ErrBadState {
		t.Fatalf("initial over limit: %v, want ErrBadState", err)
	}
	s, err := k.NewSem("ok", 2, 2)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	if c := s.Count(); c != 2 {
		t.Fatalf("count = %d, want 2", c)
	}
}

func TestGiveHandsOffWithoutCountOrSwitch(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	var log []string
	var takeErr error
	mustSpawn(t, k, "waiter", 5, func(th *Thread) {
		takeErr = s.Take(th, Forever)
		log = append(log, "waiter")
	})
	mustSpawn(t, k, "giver", 2, func(th *Thread) {
		if err := s.Give(th); err != nil {
			t.Errorf("give: %v", err)
		}
		// The woken waiter is less urgent; the giver keeps running.
		log = append(log, "giver")
		if c := s.Count(); c != 0 {
			t.Errorf("count = %d during hand-off, want 0", c)
		}
	})
	k.Start()
	k.Wait()
	if takeErr != nil {
		t.Fatalf("take = %v", takeErr)
	}
	if len(log) != 2 || log[0] != "giver" || log[1] != "waiter" {
		t.Fatalf("log = %v", log)
	}
}

func TestGiveSaturatesAtLimit(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 2)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	mustSpawn(t, k, "giver", 5, func(th *Thread) {
		for i := 0; i < 5; i++ {
			if err := s.Give(th); err != nil {
				t.Errorf("give %d: %v", i, err)
			}
		}
	})
	k.Start()
	k.Wait()
	if c := s.Count(); c != 2 {
		t.Fatalf("count = %d, want limit 2", c)
	}
}

func TestSemReset(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 3, 4)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	s.Reset()
	if c := s.Count(); c != 0 {
		t.Fatalf("count = %d after reset, want 0", c)
	}
}

func TestGiveISRWakesThroughIdle(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	done := false
	mustSpawn(t, k, "waiter", 5, func(th *Thread) {
		if err := s.Take(th, Forever); err != nil {
			t.Errorf("take: %v", err)
		}
		done = true
	})
	k.Start()
	k.WaitIdle()
	if done {
		t.Fatalf("woke before the interrupt")
	}
	s.GiveISR()
	k.Wait()
	if !done {
		t.Fatalf("interrupt give never woke the waiter")
	}
}

func TestSemCloseWakesAllWaiters(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		mustSpawn(t, k, "waiter", 1, func(th *Thread) {
			errs[i] = s.Take(th, Forever)
		})
	}
	var lateGive, lateTake error
	mustSpawn(t, k, "closer", 5, func(th *Thread) {
		if err := s.Close(th); err != nil {
			t.Errorf("close: %v", err)
		}
		lateGive = s.Give(th)
		lateTake = s.Take(th, NoWait)
	})
	k.Start()
	k.Wait()
	for i, err := range errs {
		if err != ErrDeleted {
			t.Fatalf("waiter %d = %v, want ErrDeleted", i, err)
		}
	}
	if lateGive != ErrDeleted || lateTake != ErrDeleted {
		t.Fatalf("post-close ops = %v, %v, want ErrDeleted", lateGive, lateTake)
	}
}

func TestMoreUrgentWaiterServedFirst(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 2)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	var order []string
	waiter := func(th *Thread) {
		if err := s.Take(th, Forever); err != nil {
			t.Errorf("take: %v", err)
		}
		order = append(order, th.Name())
	}
	mustSpawn(t, k, "casual", 3, waiter)
	mustSpawn(t, k, "eager", 4, waiter)
	mustSpawn(t, k, "vip", 2, waiter)
	mustSpawn(t, k, "giver", 5, func(th *Thread) {
		for i := 0; i < 3; i++ {
			if err := s.Give(th); err != nil {
				t.Errorf("give: %v", err)
			}
		}
	})
	k.Start()
	k.Wait()
	want := []string{"vip", "casual", "eager"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestInterruptWakePreemptsAtNextTake(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	wake, err := k.NewSem("wake", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	pool, err := k.NewSem("pool", 1, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	var log []string
	mustSpawn(t, k, "high", 1, func(th *Thread) {
		if err := wake.Take(th, Forever); err != nil {
			t.Errorf("high take: %v", err)
		}
		log = append(log, "high ran")
	})
	started := make(chan struct{})
	var fired atomic.Bool
	mustSpawn(t, k, "low", 5, func(th *Thread) {
		close(started)
		for !fired.Load() {
			runtime.Gosched()
		}
		if err := pool.Take(th, NoWait); err != nil {
			t.Errorf("low take: %v", err)
		}
		log = append(log, "low resumed")
	})
	k.Start()
	<-started
	wake.GiveISR()
	fired.Store(true)
	k.Wait()
	want := []string{"high ran", "low resumed"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}
