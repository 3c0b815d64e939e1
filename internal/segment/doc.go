// Package segment partitions probed media into request-sized time ranges and
// extracts each range as an independently decodable audio file.
//
// Planner computes a contiguous Plan from the average bitrate, moving cut
// points onto nearby silence through a pluggable CutFinder. Segmenter
// re-encodes every planned range into its work directory and bisects any
// range whose encoded size still exceeds the byte limit, so every Audio it
// hands out fits in one request.
package segment
