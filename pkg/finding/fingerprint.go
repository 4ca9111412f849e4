package finding

import (
	"strconv"

	"github.com/spaolacci/murmur3"
)

// StackHash fingerprints a call stack so identical callers group together
// across sites. Frames are hashed by script URL, function name and position;
// script IDs are per-page and left out. An empty stack hashes to 0.
func StackHash(frames []CallFrame) uint32 {
	if len(frames) == 0 {
		return 0
	}
	h := murmur3.New32()
	var buf []byte
	for _, f := range frames {
		buf = buf[:0]
		buf = append(buf, f.URL...)
		buf = append(buf, 0)
		buf = append(buf, f.FunctionName...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, f.LineNumber, 10)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, f.ColumnNumber, 10)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	return h.Sum32()
}
