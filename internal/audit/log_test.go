package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *recordingSink) Write(e Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

func TestLogAppendOrdering(t *testing.T) {
	sink := &recordingSink{}
	l := New(nil, WithSink(sink))

	l.Append(Entry{RuleID: "a", Action: ActionCreated})
	l.Append(Entry{RuleID: "b", Action: ActionCreated})
	l.Append(Entry{RuleID: "a", Action: ActionUpdated})

	all := l.All()
	if len(all) != 3 || l.Len() != 3 {
		t.Fatalf("len = %d/%d, want 3", len(all), l.Len())
	}
	for i, e := range all {
		if e.Sequence != uint64(i+1) {
			t.Errorf("entry %d sequence = %d, want %d", i, e.Sequence, i+1)
		}
		if e.ID == "" {
			t.Errorf("entry %d has no id", i)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
	}

	byA := l.ByRule("a")
	if len(byA) != 2 || byA[0].Action != ActionCreated || byA[1].Action != ActionUpdated {
		t.Errorf("ByRule(a) = %+v", byA)
	}
	if got := l.ByRule("missing"); len(got) != 0 {
		t.Errorf("ByRule(missing) = %+v, want empty", got)
	}
	if len(sink.entries) != 3 || sink.entries[2].Sequence != 3 {
		t.Errorf("sink received %+v", sink.entries)
	}
}

func TestLogReturnsCopies(t *testing.T) {
	l := New(nil)
	snap := &rule.Rule{ID: "r1", Name: "before", Tags: []string{"x"}}
	l.Append(Entry{RuleID: "r1", Action: ActionCreated, NewVersion: snap})

	snap.Name = "mutated by caller"
	got := l.All()
	got[0].NewVersion.Tags[0] = "mutated by reader"

	again := l.ByRule("r1")[0]
	if again.NewVersion.Name != "before" || again.NewVersion.Tags[0] != "x" {
		t.Errorf("stored entry changed: %+v", again.NewVersion)
	}
}

func TestLogKeepsExplicitTimestamp(t *testing.T) {
	fixed := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	l := New(nil, WithClock(func() time.Time { return fixed.Add(time.Hour) }))

	e := l.Append(Entry{RuleID: "r", Action: ActionEvaluated, Timestamp: fixed})
	if !e.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, fixed)
	}
	e = l.Append(Entry{RuleID: "r", Action: ActionEvaluated})
	if !e.Timestamp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("timestamp = %v, want clock value", e.Timestamp)
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Append(Entry{RuleID: fmt.Sprintf("r%d", i), Action: ActionEvaluated})
			}
		}(i)
	}
	wg.Wait()

	all := l.All()
	if len(all) != 400 {
		t.Fatalf("len = %d, want 400", len(all))
	}
	for i, e := range all {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("entry %d sequence = %d; log is not insertion-ordered", i, e.Sequence)
		}
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, nil)
	l := New(nil, WithSink(sink))

	for i := 0; i < 5; i++ {
		l.Append(Entry{RuleID: "r1", Action: ActionEvaluated, ClientTypeID: i})
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	sc := bufio.NewScanner(&buf)
	n := 0
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		n++
		if e.Sequence != uint64(n) {
			t.Errorf("line %d sequence = %d", n, e.Sequence)
		}
	}
	if n != 5 {
		t.Errorf("wrote %d lines, want 5", n)
	}

	// Writes after Close are dropped, not panics.
	sink.Write(Entry{RuleID: "late"})
}
