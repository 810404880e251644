package kv

import "fmt"

// Binding key conventions. External tooling depends on these layouts.
const (
	pointPrefix  = "point:"
	segInPrefix  = "seg:in:"
	segOutPrefix = "seg:out:"

	// Id allocator high-water marks.
	PointSeqKey   = "idseq:point"
	SegmentSeqKey = "idseq:segment"
)

// PointKey returns the metadata key for a point id: point:<id>.
func PointKey(id int64) string {
	return fmt.Sprintf("%s%d", pointPrefix, id)
}

// SegmentInKey returns the inbound edge key: seg:in:<from>:<to>.
func SegmentInKey(fromID, toID int64) string {
	return fmt.Sprintf("%s%d:%d", segInPrefix, fromID, toID)
}

// SegmentOutKey returns the outbound edge key: seg:out:<to>:<from>.
func SegmentOutKey(toID, fromID int64) string {
	return fmt.Sprintf("%s%d:%d", segOutPrefix, toID, fromID)
}

// SegmentInScan returns the inclusive range covering every inbound edge
// key that starts at fromID: seg:in:<from>:*.
func SegmentInScan(fromID int64) (start, end string) {
	prefix := fmt.Sprintf("%s%d:", segInPrefix, fromID)
	return prefix, prefix + "\xff"
}

// SegmentOutScan returns the inclusive range covering every outbound
// edge key that ends at toID: seg:out:<to>:*.
func SegmentOutScan(toID int64) (start, end string) {
	prefix := fmt.Sprintf("%s%d:", segOutPrefix, toID)
	return prefix, prefix + "\xff"
}
