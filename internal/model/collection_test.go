package model

import (
	"errors"
	"testing"
)

func TestCollectionWithID_PushAndLookup(t *testing.T) {
	var c CollectionWithID[Network]

	idx, err := c.Push(Network{NetworkID: "N1", Name: "One"})
	if err != nil {
		t.Fatalf("Push(N1) error: %v", err)
	}
	if idx != 0 {
		t.Errorf("Push(N1) = %d, want 0", idx)
	}
	if _, err := c.Push(Network{NetworkID: "N2", Name: "Two"}); err != nil {
		t.Fatalf("Push(N2) error: %v", err)
	}

	if !c.ContainsID("N2") {
		t.Error("ContainsID('N2') should return true")
	}
	if c.ContainsID("N3") {
		t.Error("ContainsID('N3') should return false")
	}
	got, ok := c.Get("N1")
	if !ok || got.Name != "One" {
		t.Errorf("Get('N1') = %+v, %v, want name One", got, ok)
	}
	if i, ok := c.GetIdx("N2"); !ok || i != 1 {
		t.Errorf("GetIdx('N2') = %d, %v, want 1, true", i, ok)
	}
}

func TestCollectionWithID_DuplicateRejected(t *testing.T) {
	_, err := NewCollectionWithID([]Network{
		{NetworkID: "N1", Name: "One"},
		{NetworkID: "N1", Name: "Again"},
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("NewCollectionWithID() error = %v, want ErrDuplicateID", err)
	}
}

func TestCollectionWithID_RetainReindexes(t *testing.T) {
	c, err := NewCollectionWithID([]Line{
		{LineID: "L1"}, {LineID: "L2"}, {LineID: "L3"},
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Retain(func(l *Line) bool { return l.LineID != "L2" })

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if c.ContainsID("L2") {
		t.Error("L2 should have been removed")
	}
	idx, ok := c.GetIdx("L3")
	if !ok || idx != 1 {
		t.Errorf("GetIdx('L3') = %d, %v, want 1, true", idx, ok)
	}
	if c.Index(idx).LineID != "L3" {
		t.Errorf("Index(%d) = %q, want L3", idx, c.Index(idx).LineID)
	}
}

func TestCollectionWithID_IndexMut(t *testing.T) {
	c, err := NewCollectionWithID([]Line{{LineID: "L1", NetworkID: "N1"}})
	if err != nil {
		t.Fatal(err)
	}
	c.IndexMut(0).NetworkID = "N2"
	if got, _ := c.Get("L1"); got.NetworkID != "N2" {
		t.Errorf("NetworkID = %q, want N2", got.NetworkID)
	}
}

func TestCollectionWithID_ZeroValue(t *testing.T) {
	var c CollectionWithID[Ticket]
	if c.ContainsID("T1") {
		t.Error("empty collection should not contain T1")
	}
	if _, ok := c.Get("T1"); ok {
		t.Error("Get on empty collection should return false")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCollection_Retain(t *testing.T) {
	c := NewCollection([]TicketPrice{
		{TicketID: "T1"}, {TicketID: "T2"}, {TicketID: "T1"},
	})
	c.Retain(func(p *TicketPrice) bool { return p.TicketID == "T1" })
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	for _, p := range c.Values() {
		if p.TicketID != "T1" {
			t.Errorf("unexpected price for %q", p.TicketID)
		}
	}
}
