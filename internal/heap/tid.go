package heap

import "fmt"

// RecordPointer is the address of a record inside a table:
// PageID: logical page id
// Slot  : position of the record inside that page
type RecordPointer struct {
	PageID int
	Slot   int
}

func (p RecordPointer) String() string { return fmt.Sprintf("(%d,%d)", p.PageID, p.Slot) }
