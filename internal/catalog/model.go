package catalog

import (
	"slices"
	"time"

	"github.com/tuannm99/novastore/internal/record"
)

// TableMeta describes one table: its attributes, page capacity and where
// each page lives in the data file.
//
// Page ids are logical positions 0..PageCount-1 in primary-key order.
// Slots[id] is the physical slot of that page in the data file. Freed slots
// are kept in FreeSlots and handed out again before the file grows.
type TableMeta struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	FileBase     string        `json:"file_base"`
	Schema       record.Schema `json:"schema"`
	PageCapacity int           `json:"page_capacity"`
	Slots        []int         `json:"slots"`
	FreeSlots    []int         `json:"free_slots,omitempty"`
	SlotCount    int           `json:"slot_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (m *TableMeta) PageCount() int { return len(m.Slots) }

// SlotOf returns the physical slot of pageID.
func (m *TableMeta) SlotOf(pageID int) (int, bool) {
	if pageID < 0 || pageID >= len(m.Slots) {
		return 0, false
	}
	return m.Slots[pageID], true
}

// InsertPage makes room for a new page at pageID; pages at pageID and above
// move up by one. It returns the physical slot assigned to the new page.
func (m *TableMeta) InsertPage(pageID int) int {
	var slot int
	if n := len(m.FreeSlots); n > 0 {
		slot = m.FreeSlots[n-1]
		m.FreeSlots = m.FreeSlots[:n-1]
	} else {
		slot = m.SlotCount
		m.SlotCount++
	}
	m.Slots = slices.Insert(m.Slots, pageID, slot)
	m.UpdatedAt = time.Now()
	return slot
}

// AppendPage adds a page after the last one and returns its id and slot.
func (m *TableMeta) AppendPage() (int, int) {
	id := len(m.Slots)
	return id, m.InsertPage(id)
}

// RemovePage drops pageID from the mapping; pages above it move down by one.
// The slot is recycled. It returns the freed slot.
func (m *TableMeta) RemovePage(pageID int) int {
	slot := m.Slots[pageID]
	m.Slots = slices.Delete(m.Slots, pageID, pageID+1)
	m.FreeSlots = append(m.FreeSlots, slot)
	m.UpdatedAt = time.Now()
	return slot
}
