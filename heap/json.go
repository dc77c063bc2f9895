package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// HeapJsonData populates a json object with a summary of the heap followed by
// one entry per block, in heap order. Depending on heap size this can be
// slow; it is meant for diagnostics.
func (a *Allocator) HeapJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.mem.HeapSize())
	json.Name("ManagedBytes").Int(a.mem.HeapSize() - 2*wordSize)
	json.Name("UnusedBytes").Int(a.freeBytes)
	json.Name("Allocations").Int(a.allocCount)
	json.Name("FreeRanges").Int(a.freeBlockCount)

	blocks := json.Name("Blocks").Array()
	defer blocks.End()

	_ = a.VisitAllBlocks(func(offset, size int, allocated bool) error {
		obj := blocks.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		obj.Name("Allocated").Bool(allocated)
		obj.Name("Mini").Bool(size == miniBlockSize)

		return nil
	})
}

// MarshalHeapJSON renders HeapJsonData as a standalone JSON document.
func (a *Allocator) MarshalHeapJSON() ([]byte, error) {
	w := jwriter.NewWriter()

	obj := w.Object()
	a.HeapJsonData(obj)
	obj.End()

	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
