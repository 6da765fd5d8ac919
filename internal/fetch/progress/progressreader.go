package progress

import "io"

// Reader wraps an io.Reader and invokes a callback as bytes flow through it,
// at most once per interval bytes so large transfers do not flood the logs.
type Reader struct {
	r        io.Reader
	total    int64 // expected total, 0 when unknown
	interval int64 // bytes between callbacks
	read     int64 // cumulative bytes read
	pending  int64 // bytes read since last callback
	report   func(read, total int64)
}

func NewReader(r io.Reader, total, interval int64, report func(read, total int64)) *Reader {
	return &Reader{
		r:        r,
		total:    total,
		interval: interval,
		report:   report,
	}
}

// BytesRead returns the cumulative number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.pending += int64(n)

		if pr.report != nil && pr.pending >= pr.interval {
			pr.report(pr.read, pr.total)
			pr.pending = 0
		}
	}

	return n, err
}
