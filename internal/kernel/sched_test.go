package kernel

import (
	"testing"
)

func TestStartRunsMostUrgentFirst(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	var order []string
	entry := func(th *Thread) { order = append(order, th.Name()) }
	mustSpawn(t, k, "mid", 3, entry)
	mustSpawn(t, k, "high", 1, entry)
	mustSpawn(t, k, "low", 5, entry)
	k.Start()
	k.Wait()
	want := []string{"high", "mid", "low"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("run order = %v, want %v", order, want)
		}
	}
}

func TestWakePreemptsLessUrgentGiver(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	var log []string
	mustSpawn(t, k, "high", 1, func(th *Thread) {
		if err := s.Take(th, Forever); err != nil {
			t.Errorf("take: %v", err)
		}
		log = append(log, "high woke")
	})
	mustSpawn(t, k, "low", 5, func(th *Thread) {
		log = append(log, "low gives")
		if err := s.Give(th); err != nil {
			t.Errorf("give: %v", err)
		}
		log = append(log, "low resumes")
	})
	k.Start()
	k.Wait()
	want := []string{"low gives", "high woke", "low resumes"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestYieldRoundRobinsEquals(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	var order []string
	entry := func(th *Thread) {
		for i := 0; i < 3; i++ {
			order = append(order, th.Name())
			if err := k.Yield(th); err != nil {
				t.Errorf("yield: %v", err)
			}
		}
	}
	mustSpawn(t, k, "a", 5, entry)
	mustSpawn(t, k, "b", 5, entry)
	k.Start()
	k.Wait()
	want := []string{"a", "b", "a", "b", "a", "b"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCooperativeThreadKeepsProcessor(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	var log []string
	mustSpawn(t, k, "urgent", -4, func(th *Thread) {
		if err := s.Take(th, Forever); err != nil {
			t.Errorf("take: %v", err)
		}
		log = append(log, "urgent woke")
	})
	mustSpawn(t, k, "lazy", -1, func(th *Thread) {
		if err := s.Give(th); err != nil {
			t.Errorf("give: %v", err)
		}
		// A cooperative thread is never preempted, even by a more urgent
		// cooperative waiter it just woke.
		log = append(log, "lazy finishes")
	})
	k.Start()
	k.Wait()
	if len(log) != 2 || log[0] != "lazy finishes" || log[1] != "urgent woke" {
		t.Fatalf("log = %v", log)
	}
}

func TestSuspendResume(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	resume, err := k.NewSem("resume", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	ran := false
	worker := mustSpawn(t, k, "worker", 5, func(*Thread) { ran = true })
	mustSpawn(t, k, "controller", 0, func(th *Thread) {
		if err := k.Suspend(th, worker); err != nil {
			t.Errorf("suspend: %v", err)
		}
		if err := resume.Take(th, Forever); err != nil {
			t.Errorf("controller take: %v", err)
		}
		if err := k.Resume(th, worker); err != nil {
			t.Errorf("resume: %v", err)
		}
	})
	k.Start()
	k.WaitIdle()
	if ran {
		t.Fatalf("suspended worker ran")
	}
	for _, info := range k.Snapshot() {
		if info.ID == worker && info.State != StateSuspended {
			t.Fatalf("worker state = %v, want suspended", info.State)
		}
	}
	resume.GiveISR()
	k.Wait()
	if !ran {
		t.Fatalf("worker never ran after resume")
	}
}

func TestSuspendBlockedThreadRejected(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	waiter := mustSpawn(t, k, "waiter", 1, func(th *Thread) {
		_ = s.Take(th, Forever)
	})
	var got error
	mustSpawn(t, k, "controller", 5, func(th *Thread) {
		got = k.Suspend(th, waiter)
	})
	k.Start()
	k.WaitIdle()
	if got != ErrBadState {
		t.Fatalf("suspend of blocked thread = %v, want ErrBadState", got)
	}
}

func TestSelfSuspendStopsUntilResumed(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	var log []string
	worker := mustSpawn(t, k, "worker", 1, func(th *Thread) {
		if err := k.Suspend(th, th.ID()); err != nil {
			t.Errorf("self-suspend: %v", err)
		}
		log = append(log, "worker back")
	})
	mustSpawn(t, k, "controller", 5, func(th *Thread) {
		if err := k.Resume(th, worker); err != nil {
			t.Errorf("resume: %v", err)
		}
		log = append(log, "controller done")
	})
	k.Start()
	k.Wait()
	if len(log) != 2 || log[0] != "worker back" || log[1] != "controller done" {
		t.Fatalf("log = %v", log)
	}
}

func TestSetPriorityRepositionsReadyThread(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	var order []string
	entry := func(th *Thread) { order = append(order, th.Name()) }
	mustSpawn(t, k, "x", 5, entry)
	y := mustSpawn(t, k, "y", 6, entry)
	mustSpawn(t, k, "controller", 0, func(th *Thread) {
		if err := k.SetPriority(th, y, 4); err != nil {
			t.Errorf("set priority: %v", err)
		}
		if err := k.SetPriority(th, y, Priority(40)); err != ErrBadPriority {
			t.Errorf("priority 40: %v, want ErrBadPriority", err)
		}
	})
	k.Start()
	k.Wait()
	if len(order) != 2 || order[0] != "y" || order[1] != "x" {
		t.Fatalf("order = %v, want y before x", order)
	}
}

func TestTerminateBlockedThreadUnlinks(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	resumed := false
	victim := mustSpawn(t, k, "victim", 1, func(th *Thread) {
		_ = s.Take(th, Forever)
		resumed = true
	})
	mustSpawn(t, k, "controller", 5, func(th *Thread) {
		if err := k.Terminate(th, victim); err != nil {
			t.Errorf("terminate: %v", err)
		}
		// With the waiter gone the give bumps the count.
		if err := s.Give(th); err != nil {
			t.Errorf("give: %v", err)
		}
	})
	k.Start()
	k.Wait()
	if resumed {
		t.Fatalf("terminated thread ran past its wait")
	}
	if c := s.Count(); c != 1 {
		t.Fatalf("count = %d, want 1", c)
	}
}

func TestJoinWaitsForExit(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	var log []string
	worker := mustSpawn(t, k, "worker", 5, func(*Thread) {
		log = append(log, "worker done")
	})
	mustSpawn(t, k, "joiner", 1, func(th *Thread) {
		if err := k.Join(th, worker, Forever); err != nil {
			t.Errorf("join: %v", err)
		}
		log = append(log, "joined")
	})
	k.Start()
	k.Wait()
	if len(log) != 2 || log[0] != "worker done" || log[1] != "joined" {
		t.Fatalf("log = %v", log)
	}
}

func TestJoinEdgeCases(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	blocked := mustSpawn(t, k, "blocked", 1, func(th *Thread) {
		_ = s.Take(th, Forever)
	})
	done := mustSpawn(t, k, "done", 2, func(*Thread) {})
	var selfErr, noWaitErr, goneErr, missingErr error
	mustSpawn(t, k, "joiner", 5, func(th *Thread) {
		selfErr = k.Join(th, th.ID(), Forever)
		noWaitErr = k.Join(th, blocked, NoWait)
		goneErr = k.Join(th, done, Forever)
		missingErr = k.Join(th, ThreadID(999), Forever)
	})
	k.Start()
	k.WaitIdle()
	if selfErr != ErrDeadlock {
		t.Fatalf("self-join = %v, want ErrDeadlock", selfErr)
	}
	if noWaitErr != ErrWouldBlock {
		t.Fatalf("no-wait join of live thread = %v, want ErrWouldBlock", noWaitErr)
	}
	if goneErr != nil {
		t.Fatalf("join of exited thread = %v, want nil", goneErr)
	}
	if missingErr != ErrTerminated {
		t.Fatalf("join of unknown id = %v, want ErrTerminated", missingErr)
	}
}

func TestThreadOpsRejectedOutsideThreadContext(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	s, err := k.NewSem("s", 0, 1)
	if err != nil {
		t.Fatalf("new sem: %v", err)
	}
	var handle *Thread
	mustSpawn(t, k, "waiter", 5, func(th *Thread) {
		handle = th
		_ = s.Take(th, Forever)
	})
	k.Start()
	k.WaitIdle()
	// The test goroutine is interrupt context; a borrowed handle whose
	// thread is not running must be rejected.
	if err := k.Yield(handle); err != ErrNotCurrent {
		t.Fatalf("yield from outside = %v, want ErrNotCurrent", err)
	}
	if err := s.Give(handle); err != ErrNotCurrent {
		t.Fatalf("give from outside = %v, want ErrNotCurrent", err)
	}
}

func TestSleepZeroYields(t *testing.T) {
	k := New(Config{})
	defer k.Stop()
	var order []string
	mustSpawn(t, k, "a", 5, func(th *Thread) {
		order = append(order, "a1")
		if err := k.Sleep(th, 0); err != nil {
			t.Errorf("sleep 0: %v", err)
		}
		order = append(order, "a2")
	})
	mustSpawn(t, k, "b", 5, func(*Thread) {
		order = append(order, "b")
	})
	k.Start()
	k.Wait()
	if len(order) != 3 || order[0] != "a1" || order[1] != "b" || order[2] != "a2" {
		t.Fatalf("order = %v", order)
	}
}
