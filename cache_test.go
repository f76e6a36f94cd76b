package knxip

import "testing"

func TestMemCacheGetSet(t *testing.T) {
	c := NewMemCache()
	addr := GroupAddress(1)

	if _, ok := c.Get(addr); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(addr, []byte{0x01})
	got, ok := c.Get(addr)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(got) != 1 || got[0] != 0x01 {
		t.Errorf("Get = %v, want [0x01]", got)
	}
}

func TestMemCacheSetCopiesData(t *testing.T) {
	c := NewMemCache()
	addr := GroupAddress(1)
	data := []byte{0x01}
	c.Set(addr, data)
	data[0] = 0xff

	got, _ := c.Get(addr)
	if got[0] != 0x01 {
		t.Errorf("cached value was mutated by caller's slice: got %v", got)
	}
}

func TestMemCacheGetReturnsCopy(t *testing.T) {
	c := NewMemCache()
	addr := GroupAddress(1)
	c.Set(addr, []byte{0x01})

	got, _ := c.Get(addr)
	got[0] = 0xff

	again, _ := c.Get(addr)
	if again[0] != 0x01 {
		t.Errorf("mutating a Get() result corrupted the cache: got %v", again)
	}
}

func TestMemCacheClear(t *testing.T) {
	c := NewMemCache()
	c.Set(GroupAddress(1), []byte{0x01})
	c.Clear()

	if _, ok := c.Get(GroupAddress(1)); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestMemCacheIndependentInstances(t *testing.T) {
	a := NewMemCache()
	b := NewMemCache()

	a.Set(GroupAddress(1), []byte{0xaa})
	if _, ok := b.Get(GroupAddress(1)); ok {
		t.Fatal("two MemCache instances must not share state")
	}
}
