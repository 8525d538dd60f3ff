package systems

import "testing"

func intLess(a, b int) bool { return a < b }

func TestPriorityQueueOrder(t *testing.T) {
	q := NewPriorityQueue[string, int](8, intLess)
	for k, v := range map[string]int{"a": 5, "b": 1, "c": 9, "d": 3, "e": 7} {
		if !q.Push(k, v) {
			t.Fatalf("Push(%s) failed below capacity", k)
		}
	}

	var got []int
	for q.Len() > 0 {
		_, v, _ := q.Pop()
		got = append(got, v)
	}
	want := []int{1, 3, 5, 7, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
	if _, _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue reported ok")
	}
}

func TestPriorityQueueCapacity(t *testing.T) {
	q := NewPriorityQueue[int, int](2, intLess)
	q.Push(1, 10)
	q.Push(2, 20)
	if q.Push(3, 5) {
		t.Error("Push succeeded on a full queue")
	}
	// Replacing a queued key needs no room.
	if !q.Push(2, 1) {
		t.Error("Push of an existing key failed on a full queue")
	}
	if k, v, _ := q.Peek(); k != 2 || v != 1 {
		t.Errorf("Peek = (%d, %d), want (2, 1)", k, v)
	}
}

func TestPriorityQueueDecreaseKey(t *testing.T) {
	q := NewPriorityQueue[int, int](16, intLess)
	for k := 0; k < 10; k++ {
		q.Push(k, 100+k)
	}

	i := q.IndexOf(7)
	if i < 0 {
		t.Fatal("IndexOf(7) = -1 for a queued key")
	}
	if k, v := q.At(i); k != 7 || v != 107 {
		t.Fatalf("At(%d) = (%d, %d), want (7, 107)", i, k, v)
	}
	q.Set(i, 1)
	if k, _, _ := q.Peek(); k != 7 {
		t.Errorf("head after decrease-key = %d, want 7", k)
	}

	k, v := q.RemoveAt(q.IndexOf(3))
	if k != 3 || v != 103 {
		t.Errorf("RemoveAt = (%d, %d), want (3, 103)", k, v)
	}
	if q.Contains(3) || q.IndexOf(3) != -1 {
		t.Error("removed key still queued")
	}

	// Every remaining key must still be found where it is.
	for k := 0; k < 10; k++ {
		if k == 3 {
			continue
		}
		idx := q.IndexOf(k)
		if idx < 0 {
			t.Fatalf("key %d lost", k)
		}
		if got, _ := q.At(idx); got != k {
			t.Errorf("At(IndexOf(%d)) = %d", k, got)
		}
	}

	q.Reset()
	if q.Len() != 0 || q.Contains(7) || q.Cap() != 16 {
		t.Errorf("after Reset: len %d, cap %d", q.Len(), q.Cap())
	}
}

func TestVisitedMap(t *testing.T) {
	v := NewVisitedMap[int, string](4)
	if !v.TryAdd(1, "a") {
		t.Error("TryAdd on empty map failed")
	}
	if v.TryAdd(1, "b") {
		t.Error("TryAdd replaced an existing record")
	}
	if r, _ := v.Get(1); r != "a" {
		t.Errorf("Get(1) = %q, want a", r)
	}
	v.Put(1, "c")
	if r, ok := v.Get(1); !ok || r != "c" {
		t.Errorf("Get after Put = %q, %v", r, ok)
	}
	if v.Has(2) || v.Len() != 1 {
		t.Errorf("Has(2) = %v, Len = %d", v.Has(2), v.Len())
	}
	v.Reset()
	if v.Len() != 0 || v.Has(1) {
		t.Error("Reset left records behind")
	}
}
